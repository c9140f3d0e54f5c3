// Package classfile reads and writes class files. Only the parts a
// transformation needs are decoded: the constant pool, member headers and
// method bodies. Every other attribute is carried through as opaque bytes.
package classfile

import (
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
)

// Magic is the first four bytes of every class file.
const Magic = 0xCAFEBABE

// Access flags of classes and members.
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSynchronized = 0x0020
	AccBridge       = 0x0040
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
)

// Attribute is an attribute kept in encoded form.
type Attribute struct {
	NameIndex uint16
	Name      string
	Data      []byte
	// Offset is where Data started in the parsed input, or -1.
	Offset int
}

// Member is a field or method.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []Attribute

	// body replaces the Code attribute when the class is written.
	body *bytecode.Body
}

func (m *Member) IsStatic() bool   { return m.AccessFlags&AccStatic != 0 }
func (m *Member) IsNative() bool   { return m.AccessFlags&AccNative != 0 }
func (m *Member) IsAbstract() bool { return m.AccessFlags&AccAbstract != 0 }

// Key returns the name and descriptor joined, unique within a class.
func (m *Member) Key() string {
	return m.Name + m.Descriptor
}

// Signature returns the signature of a method member.
func (m *Member) Signature() bytecode.Signature {
	return bytecode.Signature{Name: m.Name, Descriptor: m.Descriptor, Static: m.IsStatic()}
}

// Attribute returns the first attribute with the given name.
func (m *Member) Attribute(name string) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// HasCode reports whether the method has a body, decoded or replaced.
func (m *Member) HasCode() bool {
	if m.body != nil {
		return true
	}
	_, ok := m.Attribute("Code")
	return ok
}

// Replaced reports whether SetBody has been called on the method.
func (m *Member) Replaced() bool {
	return m.body != nil
}

// Version is a class-file version.
type Version struct {
	Major uint16
	Minor uint16
}

// Exceeds reports whether v is newer than limit.
func (v Version) Exceeds(limit Version) bool {
	if v.Major != limit.Major {
		return v.Major > limit.Major
	}
	return v.Minor > limit.Minor
}

// Class is a parsed class file.
type Class struct {
	Version     Version
	Pool        *cpool.Pool
	AccessFlags uint16
	This        uint16
	Super       uint16
	Interfaces  []uint16
	Fields      []*Member
	Methods     []*Member
	Attributes  []Attribute
}

// Name returns the internal name of the class.
func (c *Class) Name() (string, error) {
	return c.Pool.ClassNameAt(c.This)
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object.
func (c *Class) SuperName() (string, error) {
	if c.Super == 0 {
		return "", nil
	}
	return c.Pool.ClassNameAt(c.Super)
}

// FindMethod returns the method with the given name and descriptor, or nil.
func (c *Class) FindMethod(name, desc string) *Member {
	for _, m := range c.Methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// Body returns the body of method m: the replacement set with SetBody if
// there is one, otherwise its decoded Code attribute.
func (c *Class) Body(m *Member) (*bytecode.Body, error) {
	if m.body != nil {
		return m.body, nil
	}
	code, ok := m.Attribute("Code")
	if !ok {
		return nil, errz.Newf(errz.NonInlinableTarget, "method %s has no code", m.Key())
	}
	return bytecode.Decode(code.Data, c.Pool, m.Signature(), code.Offset)
}

// SetBody replaces the code of method m. The new body is encoded when the
// class is written; methods whose body is never replaced are written back
// byte for byte.
func (c *Class) SetBody(m *Member, b *bytecode.Body) {
	m.body = b
}
