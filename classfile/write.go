package classfile

import (
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/frames"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
)

// WriteOption configures Write.
type WriteOption func(*writeConfig)

type writeConfig struct {
	frames frames.Computer
}

// WithFrameComputer sets the collaborator that sizes the frames of
// replaced method bodies. If c also implements frames.StackMapper, its
// table is written into each replaced Code attribute. The default is
// frames.Default().
func WithFrameComputer(c frames.Computer) WriteOption {
	return func(cfg *writeConfig) {
		cfg.frames = c
	}
}

// Write encodes the class. Methods whose body was replaced get a freshly
// assembled Code attribute, interning any new symbols into the class's
// pool first; everything else is written back as it was read, so a class
// that was parsed and not modified comes out byte for byte identical.
func Write(c *Class, opts ...WriteOption) ([]byte, error) {
	cfg := writeConfig{frames: frames.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Encode replaced bodies before the pool is written, since encoding
	// can add entries to it. Encoding works on a copy of the pool so a
	// failure leaves the class as it was.
	var pool *cpool.Pool
	var codes []encodedCode
	for _, m := range c.Methods {
		if m.body == nil {
			continue
		}
		if pool == nil {
			pool = c.Pool.Clone()
		}
		code, err := encodeBody(pool, m, cfg.frames)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if len(codes) > 0 {
		c.Pool = pool
		for _, code := range codes {
			code.commit()
		}
	}

	w := byteio.NewWriter()
	w.U32(Magic)
	w.U16(c.Version.Minor)
	w.U16(c.Version.Major)
	c.Pool.Write(w)
	w.U16(c.AccessFlags)
	w.U16(c.This)
	w.U16(c.Super)
	w.U16(uint16(len(c.Interfaces)))
	for _, i := range c.Interfaces {
		w.U16(i)
	}
	writeMembers(w, c.Fields)
	writeMembers(w, c.Methods)
	writeAttributes(w, c.Attributes)
	return w.Bytes(), nil
}

// encodedCode is a Code attribute ready to be stored on its method.
type encodedCode struct {
	m    *Member
	data []byte
	// name is the pool index of "Code", used when the method had no Code
	// attribute before.
	name uint16
}

func (e encodedCode) commit() {
	for i, a := range e.m.Attributes {
		if a.Name == "Code" {
			e.m.Attributes[i].Data = e.data
			e.m.Attributes[i].Offset = -1
			return
		}
	}
	e.m.Attributes = append(e.m.Attributes, Attribute{NameIndex: e.name, Name: "Code", Data: e.data, Offset: -1})
	e.m.AccessFlags &^= AccAbstract | AccNative
}

func encodeBody(pool *cpool.Pool, m *Member, computer frames.Computer) (encodedCode, error) {
	b := m.body
	if b.Name() != m.Name || b.Descriptor() != m.Descriptor {
		// A body taken from another method keeps its instructions but
		// takes on the identity of the method it now belongs to.
		p := b.Params()
		p.Signature = m.Signature()
		b = bytecode.NewBody(p)
	}
	sizes, err := computer.Compute(b)
	if err != nil {
		return encodedCode{}, errz.Newf(errz.KindOr(err, errz.MalformedCode), "sizing frames of %s", m.Key()).WithCause(err)
	}
	var stackMap bytecode.StackMapFunc
	if mapper, ok := computer.(frames.StackMapper); ok {
		stackMap = func(layout *bytecode.Assembled) ([]byte, error) {
			return mapper.StackMapTable(b, layout, pool)
		}
	}
	data, err := bytecode.Encode(b, pool, sizes.MaxStack, sizes.MaxLocals, stackMap)
	if err != nil {
		return encodedCode{}, err
	}
	code := encodedCode{m: m, data: data}
	if _, ok := m.Attribute("Code"); !ok {
		if code.name, err = pool.InternUtf8("Code"); err != nil {
			return encodedCode{}, err
		}
	}
	return code, nil
}

func writeMembers(w *byteio.Writer, members []*Member) {
	w.U16(uint16(len(members)))
	for _, m := range members {
		w.U16(m.AccessFlags)
		w.U16(m.NameIndex)
		w.U16(m.DescriptorIndex)
		writeAttributes(w, m.Attributes)
	}
}

func writeAttributes(w *byteio.Writer, attrs []Attribute) {
	w.U16(uint16(len(attrs)))
	for _, a := range attrs {
		w.U16(a.NameIndex)
		w.U32(uint32(len(a.Data)))
		w.Raw(a.Data)
	}
}
