package raymarch

import (
	"fmt"
	"io"
	"slices"

	"github.com/soypat/raymarch/glbuild"
)

// Scene is a named set of declared primitive types and a scene SDF built from instances of them.
// The zero value is not usable, create scenes with [NewScene].
type Scene struct {
	// Name is displayed by hosts, i.e: window titles and image captions.
	Name  string
	types []*PrimitiveType
	decls []glbuild.ShaderObject
	sdf   glbuild.Shader3D
}

// NewScene returns a scene with the built-in primitive types declared and no SDF set.
// See [BuiltinTypes].
func NewScene(name string) *Scene {
	sc := &Scene{Name: name}
	for _, pt := range BuiltinTypes() {
		err := sc.Declare(pt)
		if err != nil {
			panic(err) // Built-in types are valid.
		}
	}
	return sc
}

// DisplayName returns the scene's name or "Unnamed scene" if the name is empty.
func (sc *Scene) DisplayName() string {
	if sc.Name == "" {
		return "Unnamed scene"
	}
	return sc.Name
}

// Declare adds a primitive type to the scene. Declaring a type with the same definition
// as an already declared type is a no-op. Declaring a different type under a declared name fails.
func (sc *Scene) Declare(pt *PrimitiveType) error {
	decl, err := pt.ShaderObject()
	if err != nil {
		return err
	}
	for i, got := range sc.decls {
		if got.Name() != pt.Name {
			continue
		}
		if string(got.Source()) != string(decl.Source()) {
			return fmt.Errorf("primitive type %q already declared with a different definition", pt.Name)
		}
		sc.types[i] = pt
		return nil
	}
	sc.types = append(sc.types, pt)
	sc.decls = append(sc.decls, decl)
	return nil
}

// Lookup returns the declared primitive type with the given name or nil if not found.
func (sc *Scene) Lookup(name string) *PrimitiveType {
	for _, pt := range sc.types {
		if pt.Name == name {
			return pt
		}
	}
	return nil
}

// Types returns the declared primitive types in declaration order.
func (sc *Scene) Types() []*PrimitiveType {
	return slices.Clone(sc.types)
}

// SetSDF sets the scene's SDF. A nil argument clears the scene to [Emptiness].
func (sc *Scene) SetSDF(s glbuild.Shader3D) {
	sc.sdf = s
}

// SDF returns the scene SDF or [Emptiness] if none was set.
func (sc *Scene) SDF() glbuild.Shader3D {
	if sc.sdf == nil {
		return Emptiness()
	}
	return sc.sdf
}

// Validate checks every primitive type referenced by the scene SDF is declared.
func (sc *Scene) Validate() error {
	_, err := sc.WriteSDFDecl(io.Discard)
	return err
}

// WriteShader writes the complete ray marching fragment shader of the scene to w.
func (sc *Scene) WriteShader(w io.Writer) (int, error) {
	return glbuild.NewDefaultProgrammer().WriteFragment(w, sc.decls, sc.SDF())
}

// WriteSDFDecl writes the type declarations and a `float sdScene(vec3 p)` function to w
// for hosts that bring their own ray marching template.
func (sc *Scene) WriteSDFDecl(w io.Writer) (int, error) {
	return glbuild.NewDefaultProgrammer().WriteSDFDecl(w, sc.decls, sc.SDF())
}
