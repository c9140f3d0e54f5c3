package bytecode

import (
	"strings"

	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/op"
)

// Type is a field descriptor such as "I", "J" or "[Ljava/lang/String;".
// The return type of a method may also be "V".
type Type string

// Size returns the number of local or stack slots a value of the type
// occupies.
func (t Type) Size() int {
	switch t {
	case "V":
		return 0
	case "J", "D":
		return 2
	}
	return 1
}

// IsReference reports whether the type is a class or array type.
func (t Type) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// LoadOp returns the opcode loading a local of the type.
func (t Type) LoadOp() op.Code {
	return t.pick(op.Iload, op.Lload, op.Fload, op.Dload, op.Aload)
}

// StoreOp returns the opcode storing a local of the type.
func (t Type) StoreOp() op.Code {
	return t.pick(op.Istore, op.Lstore, op.Fstore, op.Dstore, op.Astore)
}

// ReturnOp returns the opcode returning a value of the type.
func (t Type) ReturnOp() op.Code {
	if t == "V" {
		return op.Return
	}
	return t.pick(op.Ireturn, op.Lreturn, op.Freturn, op.Dreturn, op.Areturn)
}

func (t Type) pick(i, l, f, d, a op.Code) op.Code {
	switch t {
	case "J":
		return l
	case "F":
		return f
	case "D":
		return d
	}
	if t.IsReference() {
		return a
	}
	return i
}

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []Type
	Return Type
}

// ArgSlots returns the local slots the parameters occupy, not counting a
// receiver.
func (m MethodType) ArgSlots() int {
	n := 0
	for _, p := range m.Params {
		n += p.Size()
	}
	return n
}

// String returns the descriptor.
func (m MethodType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		sb.WriteString(string(p))
	}
	sb.WriteByte(')')
	sb.WriteString(string(m.Return))
	return sb.String()
}

// ParseMethodType parses a method descriptor such as "(IJ)V".
func ParseMethodType(desc string) (MethodType, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return MethodType{}, badDescriptor(desc)
	}
	var m MethodType
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n := fieldTypeLen(desc[i:])
		if n == 0 {
			return MethodType{}, badDescriptor(desc)
		}
		m.Params = append(m.Params, Type(desc[i:i+n]))
		i += n
	}
	if i >= len(desc) {
		return MethodType{}, badDescriptor(desc)
	}
	ret := desc[i+1:]
	if ret != "V" && fieldTypeLen(ret) != len(ret) {
		return MethodType{}, badDescriptor(desc)
	}
	m.Return = Type(ret)
	return m, nil
}

// ParseFieldType parses a single field descriptor.
func ParseFieldType(desc string) (Type, error) {
	if n := fieldTypeLen(desc); n == 0 || n != len(desc) {
		return "", badDescriptor(desc)
	}
	return Type(desc), nil
}

// fieldTypeLen returns the length of the field descriptor at the start of
// s, or 0 if there is none.
func fieldTypeLen(s string) int {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims > 255 || dims == len(s) {
		return 0
	}
	switch s[dims] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return dims + 1
	case 'L':
		end := strings.IndexByte(s[dims:], ';')
		if end <= 1 {
			return 0
		}
		return dims + end + 1
	}
	return 0
}

func badDescriptor(desc string) error {
	return errz.Newf(errz.MalformedReference, "invalid descriptor %q", desc)
}

// MapDescriptor returns desc with the class name inside every object type
// passed through fn.
func MapDescriptor(desc string, fn func(string) string) string {
	if strings.IndexByte(desc, 'L') < 0 {
		return desc
	}
	var sb strings.Builder
	for i := 0; i < len(desc); i++ {
		c := desc[i]
		sb.WriteByte(c)
		if c != 'L' {
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			sb.WriteString(desc[i+1:])
			break
		}
		sb.WriteString(fn(desc[i+1 : i+end]))
		sb.WriteByte(';')
		i += end
	}
	return sb.String()
}

// MapClassName passes an internal class name through fn. Array class names
// are descriptors and are mapped element-wise.
func MapClassName(name string, fn func(string) string) string {
	if strings.HasPrefix(name, "[") {
		return MapDescriptor(name, fn)
	}
	return fn(name)
}
