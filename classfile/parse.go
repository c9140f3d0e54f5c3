package classfile

import (
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
)

// DefaultMaxVersion is the newest class-file version Parse accepts unless
// configured otherwise (Java 21, preview features included).
var DefaultMaxVersion = Version{Major: 65, Minor: 0xFFFF}

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	maxVersion Version
}

// WithMaxVersion sets the newest class-file version Parse accepts.
func WithMaxVersion(v Version) ParseOption {
	return func(cfg *parseConfig) {
		cfg.maxVersion = v
	}
}

// Parse decodes a class file. Constant-pool order, duplicate pool entries
// and attribute order are preserved exactly. Method bodies are decoded on
// demand by Class.Body.
func Parse(data []byte, opts ...ParseOption) (*Class, error) {
	cfg := parseConfig{maxVersion: DefaultMaxVersion}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := byteio.NewReader(data)
	magic := r.U32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errz.At(errz.MalformedConstant, 0, "bad magic 0x%08x", magic)
	}
	c := &Class{}
	c.Version.Minor = r.U16()
	c.Version.Major = r.U16()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if c.Version.Exceeds(cfg.maxVersion) {
		return nil, errz.At(errz.UnsupportedVersion, 4, "class version %d.%d is newer than %d.%d",
			c.Version.Major, c.Version.Minor, cfg.maxVersion.Major, cfg.maxVersion.Minor)
	}

	pool, err := cpool.Read(r)
	if err != nil {
		return nil, err
	}
	c.Pool = pool

	c.AccessFlags = r.U16()
	at := r.Offset()
	c.This = r.U16()
	c.Super = r.U16()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if _, err := c.Name(); err != nil {
		return nil, errz.At(errz.MalformedReference, at, "this_class").WithCause(err)
	}
	if _, err := c.SuperName(); err != nil {
		return nil, errz.At(errz.MalformedReference, at+2, "super_class").WithCause(err)
	}
	for n := int(r.U16()); n > 0 && r.Err() == nil; n-- {
		c.Interfaces = append(c.Interfaces, r.U16())
	}

	if c.Fields, err = readMembers(r, pool); err != nil {
		return nil, err
	}
	if c.Methods, err = readMembers(r, pool); err != nil {
		return nil, err
	}
	if c.Attributes, err = readAttributes(r, pool); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errz.At(errz.MalformedConstant, r.Offset(), "%d trailing bytes after class", r.Len())
	}
	return c, nil
}

func readMembers(r *byteio.Reader, pool *cpool.Pool) ([]*Member, error) {
	count := int(r.U16())
	if err := r.Err(); err != nil {
		return nil, err
	}
	members := make([]*Member, 0, count)
	for i := 0; i < count; i++ {
		at := r.Offset()
		m := &Member{
			AccessFlags:     r.U16(),
			NameIndex:       r.U16(),
			DescriptorIndex: r.U16(),
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		var err error
		if m.Name, err = pool.Utf8At(m.NameIndex); err != nil {
			return nil, errz.At(errz.MalformedReference, at+2, "member name").WithCause(err)
		}
		if m.Descriptor, err = pool.Utf8At(m.DescriptorIndex); err != nil {
			return nil, errz.At(errz.MalformedReference, at+4, "member descriptor").WithCause(err)
		}
		if m.Attributes, err = readAttributes(r, pool); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func readAttributes(r *byteio.Reader, pool *cpool.Pool) ([]Attribute, error) {
	count := int(r.U16())
	if err := r.Err(); err != nil {
		return nil, err
	}
	attrs := make([]Attribute, 0, count)
	for i := 0; i < count; i++ {
		at := r.Offset()
		a := Attribute{NameIndex: r.U16()}
		length := int(r.U32())
		a.Offset = r.Offset()
		a.Data = r.Bytes(length)
		if err := r.Err(); err != nil {
			return nil, err
		}
		name, err := pool.Utf8At(a.NameIndex)
		if err != nil {
			return nil, errz.At(errz.MalformedReference, at, "attribute name").WithCause(err)
		}
		a.Name = name
		attrs = append(attrs, a)
	}
	return attrs, nil
}
