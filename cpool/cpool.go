// Package cpool models the constant pool of a class file: the 1-based table
// of literals and symbolic references every other structure points into.
package cpool

import (
	"fmt"
	"math"

	"github.com/deepnoodle-ai/classweave/errz"
)

// Tag identifies the kind of a constant-pool entry.
type Tag uint8

const (
	Utf8               Tag = 1
	Integer            Tag = 3
	Float              Tag = 4
	Long               Tag = 5
	Double             Tag = 6
	Class              Tag = 7
	String             Tag = 8
	Fieldref           Tag = 9
	Methodref          Tag = 10
	InterfaceMethodref Tag = 11
	NameAndType        Tag = 12
	MethodHandle       Tag = 15
	MethodType         Tag = 16
	Dynamic            Tag = 17
	InvokeDynamic      Tag = 18
	Module             Tag = 19
	Package            Tag = 20
)

var tagNames = map[Tag]string{
	Utf8:               "Utf8",
	Integer:            "Integer",
	Float:              "Float",
	Long:               "Long",
	Double:             "Double",
	Class:              "Class",
	String:             "String",
	Fieldref:           "Fieldref",
	Methodref:          "Methodref",
	InterfaceMethodref: "InterfaceMethodref",
	NameAndType:        "NameAndType",
	MethodHandle:       "MethodHandle",
	MethodType:         "MethodType",
	Dynamic:            "Dynamic",
	InvokeDynamic:      "InvokeDynamic",
	Module:             "Module",
	Package:            "Package",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Valid reports whether t is a tag the reader understands.
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

// Wide reports whether entries with this tag occupy two pool slots.
func (t Tag) Wide() bool {
	return t == Long || t == Double
}

// IsMember reports whether t is a field, method or interface method
// reference.
func (t Tag) IsMember() bool {
	return t == Fieldref || t == Methodref || t == InterfaceMethodref
}

// Entry is one decoded constant. Entries compare equal exactly when they
// are structurally equal, which is what interning keys on.
//
//	Utf8                      Str holds the raw modified UTF-8 bytes
//	Integer, Float            Bits holds the 32-bit pattern
//	Long, Double              Bits holds the 64-bit pattern
//	Class, String, MethodType A is the Utf8 index
//	Module, Package           A is the Utf8 index
//	member references         A is the Class index, B the NameAndType index
//	NameAndType               A is the name index, B the descriptor index
//	MethodHandle              A is the reference kind, B the member index
//	Dynamic, InvokeDynamic    A is the bootstrap method, B the NameAndType
type Entry struct {
	Tag  Tag
	Str  string
	A, B uint16
	Bits uint64
}

// MaxSlots is the largest constant_pool_count the format can express.
const MaxSlots = math.MaxUint16

// Pool is a constant pool. Index 0 is never valid; the slot after a Long or
// Double holds the zero Entry.
type Pool struct {
	entries []Entry
	lookup  map[Entry]uint16
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{
		entries: make([]Entry, 1),
		lookup:  map[Entry]uint16{},
	}
}

// Len returns the constant_pool_count of the pool: one more than the
// highest valid index.
func (p *Pool) Len() int {
	return len(p.entries)
}

// Clone returns an independent copy of the pool.
func (p *Pool) Clone() *Pool {
	c := &Pool{
		entries: make([]Entry, len(p.entries)),
		lookup:  make(map[Entry]uint16, len(p.lookup)),
	}
	copy(c.entries, p.entries)
	for k, v := range p.lookup {
		c.lookup[k] = v
	}
	return c
}

// Resolve returns the entry at index.
func (p *Pool) Resolve(index uint16) (Entry, error) {
	if index == 0 || int(index) >= len(p.entries) {
		return Entry{}, errz.Newf(errz.MalformedPool,
			"index %d out of range [1, %d)", index, len(p.entries))
	}
	e := p.entries[index]
	if e.Tag == 0 {
		return Entry{}, errz.Newf(errz.MalformedPool,
			"index %d is the second slot of a wide entry", index)
	}
	return e, nil
}

// Intern returns the index of the first entry equal to e, appending e if
// the pool holds no such entry.
func (p *Pool) Intern(e Entry) (uint16, error) {
	if !e.Tag.Valid() {
		return 0, errz.Newf(errz.MalformedConstant, "cannot intern tag %d", e.Tag)
	}
	if index, ok := p.lookup[e]; ok {
		return index, nil
	}
	return p.add(e)
}

// add appends e without consulting the lookup table, so duplicates present
// in parsed input keep their positions. Only the first copy is findable.
func (p *Pool) add(e Entry) (uint16, error) {
	width := 1
	if e.Tag.Wide() {
		width = 2
	}
	if len(p.entries)+width > MaxSlots {
		return 0, errz.Newf(errz.PoolOverflow,
			"adding %s entry exceeds %d slots", e.Tag, MaxSlots)
	}
	index := uint16(len(p.entries))
	p.entries = append(p.entries, e)
	if width == 2 {
		p.entries = append(p.entries, Entry{})
	}
	if _, ok := p.lookup[e]; !ok {
		p.lookup[e] = index
	}
	return index, nil
}

// Each calls fn for every valid index in ascending order.
func (p *Pool) Each(fn func(index uint16, e Entry)) {
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i].Tag != 0 {
			fn(uint16(i), p.entries[i])
		}
	}
}

func (p *Pool) expect(index uint16, tags ...Tag) (Entry, error) {
	e, err := p.Resolve(index)
	if err != nil {
		return Entry{}, err
	}
	for _, t := range tags {
		if e.Tag == t {
			return e, nil
		}
	}
	return Entry{}, errz.Newf(errz.MalformedReference,
		"index %d is %s, want %v", index, e.Tag, tags)
}

// Utf8At returns the string held by the Utf8 entry at index.
func (p *Pool) Utf8At(index uint16) (string, error) {
	e, err := p.expect(index, Utf8)
	if err != nil {
		return "", err
	}
	return e.Str, nil
}

// ClassNameAt returns the internal name of the Class entry at index.
func (p *Pool) ClassNameAt(index uint16) (string, error) {
	e, err := p.expect(index, Class)
	if err != nil {
		return "", err
	}
	return p.Utf8At(e.A)
}

// NameAndTypeAt returns the name and descriptor of the NameAndType entry at
// index.
func (p *Pool) NameAndTypeAt(index uint16) (name, desc string, err error) {
	e, err := p.expect(index, NameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.Utf8At(e.A); err != nil {
		return "", "", err
	}
	if desc, err = p.Utf8At(e.B); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// Member is a resolved field or method reference.
type Member struct {
	Tag   Tag
	Owner string
	Name  string
	Desc  string
}

func (m Member) String() string {
	return m.Owner + "." + m.Name + m.Desc
}

// MemberAt resolves the field or method reference at index.
func (p *Pool) MemberAt(index uint16) (Member, error) {
	e, err := p.expect(index, Fieldref, Methodref, InterfaceMethodref)
	if err != nil {
		return Member{}, err
	}
	owner, err := p.ClassNameAt(e.A)
	if err != nil {
		return Member{}, err
	}
	name, desc, err := p.NameAndTypeAt(e.B)
	if err != nil {
		return Member{}, err
	}
	return Member{Tag: e.Tag, Owner: owner, Name: name, Desc: desc}, nil
}

func (p *Pool) InternUtf8(s string) (uint16, error) {
	if len(s) > math.MaxUint16 {
		return 0, errz.Newf(errz.PoolOverflow, "utf8 constant of %d bytes", len(s))
	}
	return p.Intern(Entry{Tag: Utf8, Str: s})
}

func (p *Pool) internNamed(tag Tag, s string) (uint16, error) {
	u, err := p.InternUtf8(s)
	if err != nil {
		return 0, err
	}
	return p.Intern(Entry{Tag: tag, A: u})
}

func (p *Pool) InternClass(name string) (uint16, error) {
	return p.internNamed(Class, name)
}

func (p *Pool) InternString(s string) (uint16, error) {
	return p.internNamed(String, s)
}

func (p *Pool) InternMethodType(desc string) (uint16, error) {
	return p.internNamed(MethodType, desc)
}

func (p *Pool) InternNameAndType(name, desc string) (uint16, error) {
	n, err := p.InternUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.InternUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.Intern(Entry{Tag: NameAndType, A: n, B: d})
}

// InternMember interns a field or method reference and everything it
// points to.
func (p *Pool) InternMember(m Member) (uint16, error) {
	if !m.Tag.IsMember() {
		return 0, errz.Newf(errz.MalformedReference, "%s is not a member reference", m.Tag)
	}
	c, err := p.InternClass(m.Owner)
	if err != nil {
		return 0, err
	}
	nat, err := p.InternNameAndType(m.Name, m.Desc)
	if err != nil {
		return 0, err
	}
	return p.Intern(Entry{Tag: m.Tag, A: c, B: nat})
}

func (p *Pool) InternInteger(v int32) (uint16, error) {
	return p.Intern(Entry{Tag: Integer, Bits: uint64(uint32(v))})
}

func (p *Pool) InternFloat(v float32) (uint16, error) {
	return p.Intern(Entry{Tag: Float, Bits: uint64(math.Float32bits(v))})
}

func (p *Pool) InternLong(v int64) (uint16, error) {
	return p.Intern(Entry{Tag: Long, Bits: uint64(v)})
}

func (p *Pool) InternDouble(v float64) (uint16, error) {
	return p.Intern(Entry{Tag: Double, Bits: math.Float64bits(v)})
}
