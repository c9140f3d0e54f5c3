package cpool

import (
	"testing"

	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
	"github.com/stretchr/testify/require"
)

func TestInternIdempotent(t *testing.T) {
	p := New()
	a, err := p.InternMember(Member{Tag: Methodref, Owner: "Target", Name: "f", Desc: "(I)I"})
	require.NoError(t, err)
	n := p.Len()
	b, err := p.InternMember(Member{Tag: Methodref, Owner: "Target", Name: "f", Desc: "(I)I"})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, n, p.Len())

	// Utf8, Class, Utf8, Utf8, NameAndType, Methodref
	require.Equal(t, 7, p.Len())

	m, err := p.MemberAt(a)
	require.NoError(t, err)
	require.Equal(t, "Target.f(I)I", m.String())
}

func TestInternSharesComponents(t *testing.T) {
	p := New()
	c, err := p.InternClass("java/lang/Object")
	require.NoError(t, err)
	s, err := p.InternString("java/lang/Object")
	require.NoError(t, err)
	require.NotEqual(t, c, s)
	u, err := p.InternUtf8("java/lang/Object")
	require.NoError(t, err)
	require.Equal(t, uint16(1), u)
	require.Equal(t, 4, p.Len())
}

func TestWideEntries(t *testing.T) {
	p := New()
	l, err := p.InternLong(42)
	require.NoError(t, err)
	require.Equal(t, uint16(1), l)
	d, err := p.InternDouble(1.5)
	require.NoError(t, err)
	require.Equal(t, uint16(3), d)
	require.Equal(t, 5, p.Len())

	_, err = p.Resolve(2)
	require.True(t, errz.Is(err, errz.MalformedPool))
	_, err = p.Resolve(0)
	require.True(t, errz.Is(err, errz.MalformedPool))
	_, err = p.Resolve(5)
	require.True(t, errz.Is(err, errz.MalformedPool))

	e, err := p.Resolve(3)
	require.NoError(t, err)
	require.Equal(t, Double, e.Tag)
}

func TestWrongKind(t *testing.T) {
	p := New()
	i, err := p.InternInteger(7)
	require.NoError(t, err)
	_, err = p.ClassNameAt(i)
	require.True(t, errz.Is(err, errz.MalformedReference))
	_, err = p.Utf8At(i)
	require.True(t, errz.Is(err, errz.MalformedReference))
}

func TestReadWriteRoundTrip(t *testing.T) {
	p := New()
	_, err := p.InternMember(Member{Tag: Fieldref, Owner: "A", Name: "x", Desc: "J"})
	require.NoError(t, err)
	_, err = p.InternLong(-1)
	require.NoError(t, err)
	_, err = p.InternFloat(2.5)
	require.NoError(t, err)
	_, err = p.InternMethodType("()V")
	require.NoError(t, err)
	// A duplicate that only a parsed pool can contain.
	_, err = p.add(Entry{Tag: Utf8, Str: "A"})
	require.NoError(t, err)

	w := byteio.NewWriter()
	p.Write(w)
	encoded := append([]byte(nil), w.Bytes()...)

	q, err := Read(byteio.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, p.Len(), q.Len())

	w2 := byteio.NewWriter()
	q.Write(w2)
	require.Equal(t, encoded, w2.Bytes())

	// The duplicate keeps its slot but interning finds the first copy.
	last, err := q.Utf8At(uint16(q.Len() - 1))
	require.NoError(t, err)
	require.Equal(t, "A", last)
	first, err := q.InternUtf8("A")
	require.NoError(t, err)
	require.Equal(t, uint16(1), first)
}

func TestReadUnknownTag(t *testing.T) {
	data := []byte{0x00, 0x03, 0x01, 0x00, 0x01, 'a', 0x02}
	_, err := Read(byteio.NewReaderAt(data, 8))
	require.True(t, errz.Is(err, errz.MalformedConstant))
	var e *errz.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, 14, e.Offset)
}

func TestReadTruncated(t *testing.T) {
	data := []byte{0x00, 0x02, 0x01, 0x00, 0x05, 'a'}
	_, err := Read(byteio.NewReader(data))
	require.True(t, errz.Is(err, errz.TruncatedInput))
}

func TestReadDanglingClass(t *testing.T) {
	// Class pointing at an Integer.
	data := []byte{0x00, 0x03, 0x07, 0x00, 0x02, 0x03, 0x00, 0x00, 0x00, 0x01}
	_, err := Read(byteio.NewReader(data))
	require.True(t, errz.Is(err, errz.MalformedReference))
}

func TestCloneIsIndependent(t *testing.T) {
	p := New()
	a, err := p.InternClass("demo/A")
	require.NoError(t, err)

	c := p.Clone()
	require.Equal(t, p.Len(), c.Len())
	again, err := c.InternClass("demo/A")
	require.NoError(t, err)
	require.Equal(t, a, again)

	_, err = c.InternClass("demo/B")
	require.NoError(t, err)
	require.Equal(t, p.Len()+2, c.Len())
	name, err := p.ClassNameAt(a)
	require.NoError(t, err)
	require.Equal(t, "demo/A", name)
}
