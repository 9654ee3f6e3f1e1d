package scenefile

import (
	"fmt"
	"regexp"
	"strings"
)

// TokenKind identifies the lexical class of a [Token].
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokNumber
	TokString
	TokLParen
	TokRParen
	TokComma
	TokColon
	// tokSkip marks whitespace and comments which are not emitted.
	tokSkip
)

var tokenNames = [...]string{
	TokEOF:    "end of file",
	TokIdent:  "identifier",
	TokNumber: "number",
	TokString: "string",
	TokLParen: "'('",
	TokRParen: "')'",
	TokComma:  "','",
	TokColon:  "':'",
	tokSkip:   "whitespace",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenNames) {
		return tokenNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Pos is a 1-based row and column in the source.
type Pos struct {
	Row int
	Col int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Row, p.Col) }

// Token is a lexical unit of a scene file.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   Pos
}

type rule struct {
	kind  TokenKind
	regex *regexp.Regexp
}

// rules are tried in order, the first match wins. All are anchored to the
// start of the remaining input.
var rules = []rule{
	{kind: tokSkip, regex: regexp.MustCompile(`^//[^\n]*`)},
	{kind: tokSkip, regex: regexp.MustCompile(`^[ \t\r\n]+`)},
	{kind: TokNumber, regex: regexp.MustCompile(`^[+-]?(?:\d+\.\d*|\.\d+|\d+)(?:[eE][+-]?\d+)?`)},
	{kind: TokIdent, regex: regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*`)},
	{kind: TokString, regex: regexp.MustCompile(`^"(?:[^"\\\n]|\\.)*"`)},
	{kind: TokLParen, regex: regexp.MustCompile(`^\(`)},
	{kind: TokRParen, regex: regexp.MustCompile(`^\)`)},
	{kind: TokComma, regex: regexp.MustCompile(`^,`)},
	{kind: TokColon, regex: regexp.MustCompile(`^:`)},
}

// Tokenize splits src into tokens terminated by a [TokEOF] token.
// Whitespace and line comments starting with // are discarded.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	pos := Pos{Row: 1, Col: 1}
	for len(src) > 0 {
		matched := false
		for _, r := range rules {
			loc := r.regex.FindStringIndex(src)
			if loc == nil {
				continue
			}
			value := src[:loc[1]]
			if r.kind != tokSkip {
				tokens = append(tokens, Token{Kind: r.kind, Value: value, Pos: pos})
			}
			pos = advance(pos, value)
			src = src[loc[1]:]
			matched = true
			break
		}
		if !matched {
			return tokens, &Error{Pos: pos, Msg: fmt.Sprintf("unexpected character %q", firstRune(src))}
		}
	}
	tokens = append(tokens, Token{Kind: TokEOF, Pos: pos})
	return tokens, nil
}

func advance(pos Pos, consumed string) Pos {
	nl := strings.Count(consumed, "\n")
	if nl == 0 {
		pos.Col += len(consumed)
		return pos
	}
	pos.Row += nl
	pos.Col = len(consumed) - strings.LastIndexByte(consumed, '\n')
	return pos
}

func firstRune(s string) rune {
	for _, c := range s {
		return c
	}
	return 0
}
