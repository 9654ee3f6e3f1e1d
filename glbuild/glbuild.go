package glbuild

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/soypat/geometry/ms3"
)

const VersionStr = "#version 430\n"

// Names of the macros the fragment template expects to be defined by the [Programmer].
const (
	MacroSDFTypes = "TEMPLATE_SDFTYPES"
	MacroSDScene  = "TEMPLATE_SDSCENE"
)

// Uniform names the generated fragment shader reads. Hosts set them every frame.
const (
	UniformTime           = "uTime"
	UniformResolution     = "uResolution"
	UniformShadows        = "uShadows"
	UniformRenderDistance = "uRenderDistance"
	UniformMinHitDist     = "uMinHitDist"
	UniformMaxSteps       = "uMaxSteps"
	UniformCameraPos      = "uCameraPos"
	UniformCameraDir      = "uCameraDir"
	UniformCameraFovTan   = "uCameraFovTan"
	UniformSunDir         = "uSunDir"
)

// Shader stores information for automatically generating the scene distance expression
// of a ray marching shader.
type Shader interface {
	// AppendShaderExpr appends a GLSL expression that evaluates to the signed distance
	// at the world space point `p` and returns the result.
	AppendShaderExpr(b []byte) []byte
	// AppendShaderObjects appends the declarations the expression needs to compile,
	// such as the primitive type a scene instance is built from. See [ShaderObject].
	AppendShaderObjects(objs []ShaderObject) []ShaderObject
}

// Shader3D can create SDF shader source code for an arbitrary 3D shape.
type Shader3D interface {
	Shader
	// ForEachChild iterates over the Shader3D's direct Shader3D children.
	// Primitive instances have no children.
	// Operations have two or more children i.e: Union, Intersection, Difference.
	ForEachChild(userData any, fn func(userData any, s *Shader3D) error) error
	// Bounds returns the Shader3D's bounding box where the SDF is negative.
	Bounds() ms3.Box
}

// ShaderObject is a named top-level GLSL declaration a [Shader] depends on.
// Declarations are deduplicated by name during shader generation: identical
// sources are written once and distinct sources sharing a name are an error.
type ShaderObject struct {
	// NamePtr is the name of the declared type or function.
	NamePtr []byte
	source  []byte
}

// MakeShaderDecl creates a [ShaderObject] with the given name and GLSL source.
func MakeShaderDecl(name string, source []byte) (ShaderObject, error) {
	source = bytes.TrimSpace(source)
	if !IsIdentifier(name) {
		return ShaderObject{}, fmt.Errorf("invalid declaration name %q", name)
	} else if len(source) == 0 {
		return ShaderObject{}, fmt.Errorf("empty source for declaration %q", name)
	}
	return ShaderObject{NamePtr: []byte(name), source: source}, nil
}

// Name returns the declaration's name.
func (obj ShaderObject) Name() string { return string(obj.NamePtr) }

// Source returns the declaration's GLSL source.
func (obj ShaderObject) Source() []byte { return obj.source }

// IsIdentifier reports whether name is a valid GLSL identifier. Names
// starting with "gl_" are reserved by GLSL and are not valid.
func IsIdentifier(name string) bool {
	if len(name) == 0 || strings.HasPrefix(name, "gl_") || strings.Contains(name, "__") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLetter := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && i > 0) {
			return false
		}
	}
	return true
}

//go:embed raymarching.frag
var raymarchingTemplate []byte

// FragmentTemplate returns a copy of the default ray marching fragment shader template.
func FragmentTemplate() []byte {
	return bytes.Clone(raymarchingTemplate)
}

// Programmer implements shader generation logic for Shader type.
type Programmer struct {
	scratch     []byte
	decls       []byte
	objsScratch []ShaderObject
	// names maps declaration name hashes to source hashes for checking duplicates.
	names    map[uint64]uint64
	template []byte
}

// NewDefaultProgrammer returns a Programmer that writes into the embedded ray marching fragment template.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch:  make([]byte, 0, 1024),
		names:    make(map[uint64]uint64),
		template: raymarchingTemplate,
	}
}

// SetTemplate replaces the fragment template. The template's first line must be a
// #version directive and the template must use both [MacroSDFTypes] and [MacroSDScene].
func (p *Programmer) SetTemplate(template []byte) error {
	if !bytes.HasPrefix(template, []byte("#version")) {
		return errors.New("template must start with #version directive")
	} else if bytes.IndexByte(template, '\n') < 0 {
		return errors.New("template has single line")
	} else if !bytes.Contains(template, []byte(MacroSDFTypes)) {
		return errors.New("template missing " + MacroSDFTypes)
	} else if !bytes.Contains(template, []byte(MacroSDScene)) {
		return errors.New("template missing " + MacroSDScene)
	}
	p.template = template
	return nil
}

// WriteFragment lowers the declared primitive types and the scene rooted at root into
// the fragment template and writes the complete shader source to w.
// Every declaration root depends on must be present in declared.
func (p *Programmer) WriteFragment(w io.Writer, declared []ShaderObject, root Shader3D) (n int, err error) {
	err = p.lower(declared, root)
	if err != nil {
		return 0, err
	}
	tmpl := p.template
	firstLine := bytes.IndexByte(tmpl, '\n') + 1
	p.scratch = append(p.scratch[:0], tmpl[:firstLine]...)
	p.scratch = AppendDefineDecl(p.scratch, MacroSDFTypes, p.decls)
	p.scratch = AppendDefineDecl(p.scratch, MacroSDScene, p.sceneBody(root))
	p.scratch = append(p.scratch, tmpl[firstLine:]...)
	return w.Write(p.scratch)
}

// WriteSDFDecl writes the declarations followed by a `float sdScene(vec3 p)` function
// for hosts that bring their own ray marching template.
func (p *Programmer) WriteSDFDecl(w io.Writer, declared []ShaderObject, root Shader3D) (n int, err error) {
	err = p.lower(declared, root)
	if err != nil {
		return 0, err
	}
	p.scratch = append(p.scratch[:0], p.decls...)
	p.scratch = append(p.scratch, "float sdScene(vec3 p) {\n"...)
	p.scratch = append(p.scratch, p.sceneBody(root)...)
	p.scratch = append(p.scratch, "\n}\n"...)
	return w.Write(p.scratch)
}

func (p *Programmer) sceneBody(root Shader3D) []byte {
	var body []byte
	body = append(body, "return "...)
	body = root.AppendShaderExpr(body)
	body = append(body, ';')
	return body
}

// lower validates declarations against the scene tree and stores the declaration source in p.decls.
func (p *Programmer) lower(declared []ShaderObject, root Shader3D) error {
	if root == nil {
		return errors.New("nil root shader")
	}
	clear(p.names)
	p.decls = p.decls[:0]
	for _, obj := range declared {
		if len(obj.NamePtr) == 0 || len(obj.source) == 0 {
			return errors.New("zero value ShaderObject in declarations, use MakeShaderDecl")
		}
		nameHash := hash(obj.NamePtr, 0)
		srcHash := hash(obj.source, nameHash) // Source hash mixes name as well.
		gotSrcHash, nameConflict := p.names[nameHash]
		if nameConflict {
			if srcHash == gotSrcHash {
				continue // Declaration already written and is identical, skip.
			}
			return fmt.Errorf("conflicting declarations for %q", obj.NamePtr)
		}
		p.names[nameHash] = srcHash
		p.decls = append(p.decls, obj.source...)
		p.decls = append(p.decls, '\n')
	}
	return ForEachNode(root, func(s Shader3D) error {
		p.objsScratch = s.AppendShaderObjects(p.objsScratch[:0])
		for _, obj := range p.objsScratch {
			nameHash := hash(obj.NamePtr, 0)
			gotSrcHash, declaredName := p.names[nameHash]
			if !declaredName {
				return fmt.Errorf("undeclared primitive type %q referenced by %s", obj.NamePtr, nodeName(s))
			} else if gotSrcHash != hash(obj.source, nameHash) {
				return fmt.Errorf("primitive type %q referenced by %s differs from its declaration", obj.NamePtr, nodeName(s))
			}
		}
		return nil
	})
}

// ForEachNode walks the tree rooted at root depth first, calling fn on every node
// before its children.
func ForEachNode(root Shader3D, fn func(s Shader3D) error) error {
	if root == nil {
		return errors.New("nil shader")
	}
	err := fn(root)
	if err != nil {
		return err
	}
	return root.ForEachChild(nil, func(_ any, child *Shader3D) error {
		if *child == nil {
			return fmt.Errorf("nil child in %s", nodeName(root))
		}
		return ForEachNode(*child, fn)
	})
}

// AppendDefineDecl appends a multi-line #define directive. Newlines in
// replacement are escaped so the macro spans all of its lines.
func AppendDefineDecl(b []byte, aliasToDefine string, replacement []byte) []byte {
	b = append(b, "#define "...)
	b = append(b, aliasToDefine...)
	b = append(b, " \\\n"...)
	for _, c := range replacement {
		if c == '\n' {
			b = append(b, '\\')
		}
		b = append(b, c)
	}
	b = append(b, '\n')
	return b
}

// AppendVec2 appends a GLSL vec2 literal.
func AppendVec2(b []byte, x, y float32) []byte {
	b = append(b, "vec2("...)
	b = AppendFloats(b, ',', '-', '.', x, y)
	return append(b, ')')
}

// AppendVec3 appends a GLSL vec3 literal.
func AppendVec3(b []byte, v ms3.Vec) []byte {
	b = append(b, "vec3("...)
	arr := v.Array()
	b = AppendFloats(b, ',', '-', '.', arr[:]...)
	return append(b, ')')
}

// AppendVec4 appends a GLSL vec4 literal.
func AppendVec4(b []byte, x, y, z, w float32) []byte {
	b = append(b, "vec4("...)
	b = AppendFloats(b, ',', '-', '.', x, y, z, w)
	return append(b, ')')
}

func AppendFloatDecl(b []byte, floatVarname string, v float32) []byte {
	b = append(b, "float "...)
	b = append(b, floatVarname...)
	b = append(b, '=')
	b = AppendFloat(b, '-', '.', v)
	b = append(b, ';', '\n')
	return b
}

// AppendFloat appends the shortest representation of v that round trips to the same float32,
// with the neg byte for the sign and the decimal byte as decimal separator.
// Very small and very large magnitudes are written with an exponent, i.e. 1e-10.
// The result always has a decimal separator or an exponent so GLSL reads it as a float.
// Using 'n' and 'p' creates identifier safe representations of v.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'g', -1, 32)
	num := b[start:]
	exp := bytes.IndexByte(num, 'e')
	if exp < 0 && bytes.IndexByte(num, '.') < 0 {
		b = append(b, '.')
		num = b[start:]
	}
	if idx := bytes.IndexByte(num, '.'); idx >= 0 {
		num[idx] = decimal
	}
	if num[0] == '-' {
		num[0] = neg
	}
	if exp >= 0 && neg != '-' {
		// Exponent sign: drop '+' and substitute '-' to keep identifiers valid.
		switch num[exp+1] {
		case '-':
			num[exp+1] = neg
		case '+':
			b = append(b[:start+exp+1], num[exp+2:]...)
		}
	}
	return b
}

func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// FormatShader returns a compact description of the shader tree, i.e. "union(sphere,box)".
func FormatShader(s Shader3D) string {
	if s == nil {
		panic("nil shader")
	}
	var sb strings.Builder
	formatShader(&sb, s)
	return sb.String()
}

func formatShader(sb *strings.Builder, s Shader3D) {
	sb.WriteString(nodeName(s))
	first := true
	s.ForEachChild(nil, func(_ any, child *Shader3D) error {
		if first {
			sb.WriteByte('(')
			first = false
		} else {
			sb.WriteByte(',')
		}
		formatShader(sb, *child)
		return nil
	})
	if !first {
		sb.WriteByte(')')
	}
}

func nodeName(s Shader3D) string {
	if namer, ok := s.(interface{ NodeName() string }); ok {
		return namer.NodeName()
	}
	tp := reflect.TypeOf(s)
	if tp.Kind() == reflect.Pointer {
		tp = tp.Elem()
	}
	return tp.Name()
}

func hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}
