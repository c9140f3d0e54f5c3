package cpool

import (
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
)

// Read decodes a constant_pool_count followed by the pool entries. Entry
// order and duplicate entries are preserved exactly.
func Read(r *byteio.Reader) (*Pool, error) {
	count := int(r.U16())
	if err := r.Err(); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errz.At(errz.MalformedConstant, r.Offset()-2, "constant_pool_count is zero")
	}
	p := New()
	for p.Len() < count {
		at := r.Offset()
		tag := Tag(r.U8())
		var e Entry
		e.Tag = tag
		switch tag {
		case Utf8:
			n := int(r.U16())
			e.Str = string(r.Bytes(n))
		case Integer, Float:
			e.Bits = uint64(r.U32())
		case Long, Double:
			e.Bits = r.U64()
		case Class, String, MethodType, Module, Package:
			e.A = r.U16()
		case Fieldref, Methodref, InterfaceMethodref, NameAndType, Dynamic, InvokeDynamic:
			e.A = r.U16()
			e.B = r.U16()
		case MethodHandle:
			e.A = uint16(r.U8())
			e.B = r.U16()
		default:
			if r.Err() != nil {
				return nil, r.Err()
			}
			return nil, errz.At(errz.MalformedConstant, at, "unknown constant tag %d at index %d", tag, p.Len())
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if tag.Wide() && p.Len()+2 > count {
			return nil, errz.At(errz.MalformedConstant, at, "%s entry overruns constant_pool_count", tag)
		}
		if _, err := p.add(e); err != nil {
			return nil, err
		}
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// check verifies that every index an entry holds points at an entry of the
// expected kind.
func (p *Pool) check() error {
	var err error
	p.Each(func(index uint16, e Entry) {
		if err != nil {
			return
		}
		switch e.Tag {
		case Class, String, MethodType, Module, Package:
			_, err = p.expect(e.A, Utf8)
		case Fieldref, Methodref, InterfaceMethodref:
			if _, err = p.expect(e.A, Class); err == nil {
				_, err = p.expect(e.B, NameAndType)
			}
		case NameAndType:
			if _, err = p.expect(e.A, Utf8); err == nil {
				_, err = p.expect(e.B, Utf8)
			}
		case MethodHandle:
			if e.A < 1 || e.A > 9 {
				err = errz.Newf(errz.MalformedReference, "method handle %d has reference kind %d", index, e.A)
				return
			}
			_, err = p.expect(e.B, Fieldref, Methodref, InterfaceMethodref)
		case Dynamic, InvokeDynamic:
			_, err = p.expect(e.B, NameAndType)
		}
		if err != nil {
			err = errz.Newf(errz.MalformedReference, "%s entry %d", e.Tag, index).WithCause(err)
		}
	})
	return err
}

// Write encodes the pool, count first.
func (p *Pool) Write(w *byteio.Writer) {
	w.U16(uint16(len(p.entries)))
	p.Each(func(_ uint16, e Entry) {
		w.U8(uint8(e.Tag))
		switch e.Tag {
		case Utf8:
			w.U16(uint16(len(e.Str)))
			w.Raw([]byte(e.Str))
		case Integer, Float:
			w.U32(uint32(e.Bits))
		case Long, Double:
			w.U64(e.Bits)
		case Class, String, MethodType, Module, Package:
			w.U16(e.A)
		case MethodHandle:
			w.U8(uint8(e.A))
			w.U16(e.B)
		default:
			w.U16(e.A)
			w.U16(e.B)
		}
	})
}
