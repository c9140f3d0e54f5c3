package bytecode

import (
	"math"

	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
)

// Symbol is a constant-pool operand in resolved form, so instructions from
// different classes can be compared and re-interned into any pool.
//
//	Class                     Name is the internal class name or array descriptor
//	member references         Owner, Name and Desc
//	String                    Str
//	Integer, Float            Bits holds the 32-bit pattern
//	Long, Double              Bits holds the 64-bit pattern
//	MethodType                Desc
//	MethodHandle              Index
//	Dynamic, InvokeDynamic    Index, plus Name and Desc of the call site
//
// MethodHandle, Dynamic and InvokeDynamic symbols depend on the class's
// bootstrap methods and stay pinned to their original pool Index.
type Symbol struct {
	Tag   cpool.Tag
	Owner string
	Name  string
	Desc  string
	Str   string
	Bits  uint64
	Index uint16
}

func ClassRef(name string) Symbol {
	return Symbol{Tag: cpool.Class, Name: name}
}

func FieldRef(owner, name, desc string) Symbol {
	return Symbol{Tag: cpool.Fieldref, Owner: owner, Name: name, Desc: desc}
}

func MethodRef(owner, name, desc string) Symbol {
	return Symbol{Tag: cpool.Methodref, Owner: owner, Name: name, Desc: desc}
}

func InterfaceMethodRef(owner, name, desc string) Symbol {
	return Symbol{Tag: cpool.InterfaceMethodref, Owner: owner, Name: name, Desc: desc}
}

func StringConst(s string) Symbol {
	return Symbol{Tag: cpool.String, Str: s}
}

func IntConst(v int32) Symbol {
	return Symbol{Tag: cpool.Integer, Bits: uint64(uint32(v))}
}

func FloatConst(v float32) Symbol {
	return Symbol{Tag: cpool.Float, Bits: uint64(math.Float32bits(v))}
}

func LongConst(v int64) Symbol {
	return Symbol{Tag: cpool.Long, Bits: uint64(v)}
}

func DoubleConst(v float64) Symbol {
	return Symbol{Tag: cpool.Double, Bits: math.Float64bits(v)}
}

func MethodTypeConst(desc string) Symbol {
	return Symbol{Tag: cpool.MethodType, Desc: desc}
}

// Pinned reports whether the symbol is only meaningful in its original pool.
func (s Symbol) Pinned() bool {
	switch s.Tag {
	case cpool.MethodHandle, cpool.Dynamic, cpool.InvokeDynamic:
		return true
	}
	return false
}

// Wide reports whether loading the symbol pushes a category-2 value.
func (s Symbol) Wide() bool {
	switch s.Tag {
	case cpool.Long, cpool.Double:
		return true
	case cpool.Dynamic:
		return s.Desc == "J" || s.Desc == "D"
	}
	return false
}

// Member returns the symbol as a pool member reference.
func (s Symbol) Member() cpool.Member {
	return cpool.Member{Tag: s.Tag, Owner: s.Owner, Name: s.Name, Desc: s.Desc}
}

// MapClasses returns the symbol with every class name it mentions,
// including those inside descriptors, passed through fn.
func (s Symbol) MapClasses(fn func(string) string) Symbol {
	switch s.Tag {
	case cpool.Class:
		s.Name = MapClassName(s.Name, fn)
	case cpool.Fieldref, cpool.Methodref, cpool.InterfaceMethodref:
		s.Owner = MapClassName(s.Owner, fn)
		s.Desc = MapDescriptor(s.Desc, fn)
	case cpool.MethodType:
		s.Desc = MapDescriptor(s.Desc, fn)
	}
	return s
}

// Intern returns the index of the symbol in p, adding entries as needed.
func (s Symbol) Intern(p *cpool.Pool) (uint16, error) {
	switch s.Tag {
	case cpool.Class:
		return p.InternClass(s.Name)
	case cpool.Fieldref, cpool.Methodref, cpool.InterfaceMethodref:
		return p.InternMember(s.Member())
	case cpool.String:
		return p.InternString(s.Str)
	case cpool.MethodType:
		return p.InternMethodType(s.Desc)
	case cpool.Integer, cpool.Float, cpool.Long, cpool.Double:
		return p.Intern(cpool.Entry{Tag: s.Tag, Bits: s.Bits})
	case cpool.MethodHandle, cpool.Dynamic, cpool.InvokeDynamic:
		e, err := p.Resolve(s.Index)
		if err != nil {
			return 0, err
		}
		if e.Tag != s.Tag {
			return 0, errz.Newf(errz.MalformedReference,
				"pinned %s operand points at %s entry %d", s.Tag, e.Tag, s.Index)
		}
		return s.Index, nil
	}
	return 0, errz.Newf(errz.MalformedReference, "%s is not an instruction operand", s.Tag)
}

// SymbolAt resolves the pool entry at index into a Symbol.
func SymbolAt(p *cpool.Pool, index uint16) (Symbol, error) {
	e, err := p.Resolve(index)
	if err != nil {
		return Symbol{}, err
	}
	switch e.Tag {
	case cpool.Class:
		name, err := p.Utf8At(e.A)
		return ClassRef(name), err
	case cpool.Fieldref, cpool.Methodref, cpool.InterfaceMethodref:
		m, err := p.MemberAt(index)
		if err != nil {
			return Symbol{}, err
		}
		return Symbol{Tag: m.Tag, Owner: m.Owner, Name: m.Name, Desc: m.Desc}, nil
	case cpool.String:
		s, err := p.Utf8At(e.A)
		return StringConst(s), err
	case cpool.MethodType:
		desc, err := p.Utf8At(e.A)
		return MethodTypeConst(desc), err
	case cpool.Integer, cpool.Float, cpool.Long, cpool.Double:
		return Symbol{Tag: e.Tag, Bits: e.Bits}, nil
	case cpool.MethodHandle:
		return Symbol{Tag: e.Tag, Index: index}, nil
	case cpool.Dynamic, cpool.InvokeDynamic:
		name, desc, err := p.NameAndTypeAt(e.B)
		if err != nil {
			return Symbol{}, err
		}
		return Symbol{Tag: e.Tag, Name: name, Desc: desc, Index: index}, nil
	}
	return Symbol{}, errz.Newf(errz.MalformedReference,
		"%s entry %d is not an instruction operand", e.Tag, index)
}
