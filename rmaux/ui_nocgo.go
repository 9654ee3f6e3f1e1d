//go:build tinygo || !cgo

package rmaux

import (
	"errors"

	"github.com/soypat/raymarch"
)

func ui(sc *raymarch.Scene, cfg UIConfig) error {
	return errors.New("require cgo for UI rendering")
}
