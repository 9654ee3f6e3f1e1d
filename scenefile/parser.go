package scenefile

import (
	"fmt"
	"strconv"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/raymarch/glbuild"
)

// Error is a scene file error at a source position. It formats as "row:col: msg".
type Error struct {
	Pos Pos
	Msg string
}

func (e *Error) Error() string { return e.Pos.String() + ": " + e.Msg }

func errorf(pos Pos, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeTuple
	nodeCall
)

// node is an expression of the scene file syntax tree.
type node struct {
	kind nodeKind
	pos  Pos
	num  float32   // nodeNumber.
	elem []float32 // nodeTuple.
	name string    // nodeCall.
	args []arg     // nodeCall.
}

type arg struct {
	name string // Empty for positional arguments.
	pos  Pos
	val  *node
}

func (n *node) describe() string {
	switch n.kind {
	case nodeNumber:
		return "number"
	case nodeTuple:
		return fmt.Sprintf("%d-tuple", len(n.elem))
	}
	return "call to " + n.name
}

// file is the parsed form of a scene file.
type file struct {
	hasName bool
	name    string
	root    *node // nil if the file declares no shape.
}

type parser struct {
	tokens []Token
	idx    int
}

func (p *parser) current() Token {
	if p.idx >= len(p.tokens) {
		return Token{Kind: TokEOF}
	}
	return p.tokens[p.idx]
}

func (p *parser) lookAhead(n int) Token {
	idx := p.idx + n
	if idx >= len(p.tokens) {
		return Token{Kind: TokEOF}
	}
	return p.tokens[idx]
}

func (p *parser) eat(kind TokenKind) (Token, error) {
	tok := p.current()
	if tok.Kind != kind {
		return tok, errorf(tok.Pos, "expected %s but got %s", kind, describeToken(tok))
	}
	p.idx++
	return tok, nil
}

func describeToken(tok Token) string {
	if tok.Kind == TokEOF {
		return tok.Kind.String()
	}
	return fmt.Sprintf("%s %q", tok.Kind, tok.Value)
}

func parse(src string) (file, error) {
	var f file
	tokens, err := Tokenize(src)
	if err != nil {
		return f, err
	}
	p := parser{tokens: tokens}
	if tok := p.current(); tok.Kind == TokIdent && tok.Value == "scene" && p.lookAhead(1).Kind == TokString {
		p.idx++
		str, _ := p.eat(TokString)
		f.name, err = strconv.Unquote(str.Value)
		if err != nil {
			return f, errorf(str.Pos, "invalid scene name %s", str.Value)
		}
		f.hasName = true
	}
	if p.current().Kind == TokEOF {
		return f, nil
	}
	f.root, err = p.parseExpr()
	if err != nil {
		return f, err
	}
	if tok := p.current(); tok.Kind != TokEOF {
		return f, errorf(tok.Pos, "expected %s after scene expression but got %s", TokEOF, describeToken(tok))
	}
	return f, nil
}

func (p *parser) parseExpr() (*node, error) {
	tok := p.current()
	switch tok.Kind {
	case TokNumber:
		return p.parseNumber()
	case TokLParen:
		return p.parseTuple()
	case TokIdent:
		if p.lookAhead(1).Kind == TokLParen {
			return p.parseCall()
		}
		return nil, errorf(tok.Pos, "expected '(' after %q", tok.Value)
	}
	return nil, errorf(tok.Pos, "expected expression but got %s", describeToken(tok))
}

func (p *parser) parseNumber() (*node, error) {
	tok, err := p.eat(TokNumber)
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseFloat(tok.Value, 32)
	if err != nil {
		return nil, errorf(tok.Pos, "invalid number %q", tok.Value)
	}
	return &node{kind: nodeNumber, pos: tok.Pos, num: float32(v)}, nil
}

func (p *parser) parseTuple() (*node, error) {
	open, err := p.eat(TokLParen)
	if err != nil {
		return nil, err
	}
	n := &node{kind: nodeTuple, pos: open.Pos}
	for p.current().Kind != TokRParen {
		num, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		n.elem = append(n.elem, num.num)
		if p.current().Kind != TokRParen {
			_, err = p.eat(TokComma)
			if err != nil {
				return nil, err
			}
		}
	}
	p.idx++ // Consume ')'.
	if len(n.elem) < 2 || len(n.elem) > 4 {
		return nil, errorf(open.Pos, "tuples must have 2 to 4 elements, got %d", len(n.elem))
	}
	return n, nil
}

func (p *parser) parseCall() (*node, error) {
	id, err := p.eat(TokIdent)
	if err != nil {
		return nil, err
	}
	_, err = p.eat(TokLParen)
	if err != nil {
		return nil, err
	}
	n := &node{kind: nodeCall, pos: id.Pos, name: id.Value}
	for p.current().Kind != TokRParen {
		a := arg{pos: p.current().Pos}
		if p.current().Kind == TokIdent && p.lookAhead(1).Kind == TokColon {
			a.name = p.current().Value
			p.idx += 2
		}
		a.val, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.args = append(n.args, a)
		if p.current().Kind != TokRParen {
			_, err = p.eat(TokComma)
			if err != nil {
				return nil, err
			}
		}
	}
	p.idx++ // Consume ')'.
	return n, nil
}

func (n *node) vec3() ms3.Vec {
	return ms3.Vec{X: n.elem[0], Y: n.elem[1], Z: n.elem[2]}
}

func (n *node) vec2() ms2.Vec {
	return ms2.Vec{X: n.elem[0], Y: n.elem[1]}
}

// shapeArgs checks all arguments of call are positional shapes.
func (b *sceneBuilder) shapeArgs(call *node, args []arg) ([]glbuild.Shader3D, error) {
	shapes := make([]glbuild.Shader3D, len(args))
	for i, a := range args {
		if a.name != "" {
			return nil, errorf(a.pos, "%s does not accept named arguments", call.name)
		}
		s, err := b.shape(a.val)
		if err != nil {
			return nil, err
		}
		shapes[i] = s
	}
	return shapes, nil
}

func positional(call *node, want int) error {
	if len(call.args) != want {
		return errorf(call.pos, "%s: want %d arguments, got %d", call.name, want, len(call.args))
	}
	for _, a := range call.args {
		if a.name != "" {
			return errorf(a.pos, "%s does not accept named arguments", call.name)
		}
	}
	return nil
}

func number(call *node, a arg) (float32, error) {
	if a.val.kind != nodeNumber {
		return 0, errorf(a.pos, "%s: want number, got %s", call.name, a.val.describe())
	}
	return a.val.num, nil
}

func vec3(call *node, a arg) (ms3.Vec, error) {
	if a.val.kind != nodeTuple || len(a.val.elem) != 3 {
		return ms3.Vec{}, errorf(a.pos, "%s: want 3-tuple, got %s", call.name, a.val.describe())
	}
	return a.val.vec3(), nil
}
