// Package classtest builds class files for tests.
package classtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/frames"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
)

const (
	accStatic   = 0x0008
	accNative   = 0x0100
	accAbstract = 0x0400
)

type attr struct {
	name uint16
	data []byte
}

type member struct {
	flags      uint16
	name, desc uint16
	attrs      []attr
}

// Builder assembles a class file from instructions.
type Builder struct {
	major, minor uint16
	flags        uint16
	pool         *cpool.Pool
	this, super  uint16
	interfaces   []uint16
	fields       []member
	methods      []member
	attrs        []attr
	err          error
}

// New returns a builder for a public class extending java/lang/Object, at
// version 52.0.
func New(name string) *Builder {
	b := &Builder{major: 52, flags: 0x0021, pool: cpool.New()}
	b.this = b.must(b.pool.InternClass(name))
	b.super = b.must(b.pool.InternClass("java/lang/Object"))
	return b
}

func (b *Builder) must(index uint16, err error) uint16 {
	if err != nil && b.err == nil {
		b.err = err
	}
	return index
}

// Version sets the class-file version.
func (b *Builder) Version(major, minor uint16) *Builder {
	b.major, b.minor = major, minor
	return b
}

// Interface adds an implemented interface.
func (b *Builder) Interface(name string) *Builder {
	b.interfaces = append(b.interfaces, b.must(b.pool.InternClass(name)))
	return b
}

// Field adds a field.
func (b *Builder) Field(flags uint16, name, desc string) *Builder {
	b.fields = append(b.fields, member{
		flags: flags,
		name:  b.must(b.pool.InternUtf8(name)),
		desc:  b.must(b.pool.InternUtf8(desc)),
	})
	return b
}

// Method adds a method with the given code. Frame sizes are computed.
func (b *Builder) Method(flags uint16, name, desc string, code ...bytecode.Instruction) *Builder {
	return b.MethodWithHandlers(flags, name, desc, nil, code...)
}

// MethodWithHandlers adds a method with code and an exception table.
func (b *Builder) MethodWithHandlers(flags uint16, name, desc string, handlers []bytecode.Handler, code ...bytecode.Instruction) *Builder {
	m := member{
		flags: flags,
		name:  b.must(b.pool.InternUtf8(name)),
		desc:  b.must(b.pool.InternUtf8(desc)),
	}
	if flags&(accNative|accAbstract) == 0 {
		body := bytecode.NewBody(bytecode.BodyParams{
			Signature:    bytecode.Signature{Name: name, Descriptor: desc, Static: flags&accStatic != 0},
			Instructions: code,
			Handlers:     handlers,
		})
		sizes, err := frames.Default().Compute(body)
		if err != nil {
			b.err = err
			return b
		}
		data, err := bytecode.Encode(body, b.pool, sizes.MaxStack, sizes.MaxLocals, nil)
		if err != nil {
			b.err = err
			return b
		}
		m.attrs = append(m.attrs, attr{name: b.must(b.pool.InternUtf8("Code")), data: data})
	}
	b.methods = append(b.methods, m)
	return b
}

// Attribute adds an opaque class attribute.
func (b *Builder) Attribute(name string, data []byte) *Builder {
	b.attrs = append(b.attrs, attr{name: b.must(b.pool.InternUtf8(name)), data: data})
	return b
}

// SourceFile adds a SourceFile attribute.
func (b *Builder) SourceFile(name string) *Builder {
	index := b.must(b.pool.InternUtf8(name))
	return b.Attribute("SourceFile", []byte{byte(index >> 8), byte(index)})
}

// Bytes returns the encoded class.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	w := byteio.NewWriter()
	w.U32(0xCAFEBABE)
	w.U16(b.minor)
	w.U16(b.major)
	b.pool.Write(w)
	w.U16(b.flags)
	w.U16(b.this)
	w.U16(b.super)
	w.U16(uint16(len(b.interfaces)))
	for _, i := range b.interfaces {
		w.U16(i)
	}
	for _, members := range [][]member{b.fields, b.methods} {
		w.U16(uint16(len(members)))
		for _, m := range members {
			w.U16(m.flags)
			w.U16(m.name)
			w.U16(m.desc)
			writeAttrs(w, m.attrs)
		}
	}
	writeAttrs(w, b.attrs)
	return w.Bytes(), nil
}

// Build returns the encoded class, failing the test on error.
func (b *Builder) Build(t testing.TB) []byte {
	t.Helper()
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func writeAttrs(w *byteio.Writer, attrs []attr) {
	w.U16(uint16(len(attrs)))
	for _, a := range attrs {
		w.U16(a.name)
		w.U32(uint32(len(a.data)))
		w.Raw(a.data)
	}
}
