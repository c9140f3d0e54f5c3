package bytecode

import (
	"math"

	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
	"github.com/deepnoodle-ai/classweave/op"
)

// RawHandler is an exception-table entry in byte offsets.
type RawHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// LineEntry is one LineNumberTable row.
type LineEntry struct {
	PC   uint16
	Line uint16
}

// Assembled is the byte-level form of a Body.
type Assembled struct {
	Code     []byte
	Handlers []RawHandler
	Lines    []LineEntry
	// Offsets holds the byte offset of each instruction of the body, by
	// position, followed by the code length.
	Offsets []int
	// LabelOffsets holds the byte offset of each label, indexed by Label.
	LabelOffsets []int
}

// StackMapFunc returns the contents of a StackMapTable attribute for an
// assembled body, or nil when the method needs none.
type StackMapFunc func(a *Assembled) ([]byte, error)

type layout struct {
	insns []Instruction
	// index is the interned pool index of each symbol operand.
	index []uint16
	// wide marks jumps whose target is out of reach of a 16-bit offset.
	wide     []bool
	offsets  []int
	labelPos []int
}

// Assemble lays out the body and encodes it against pool, interning every
// symbol it references. Jumps start out short and are widened until every
// offset fits. It fails with OffsetOverflow if the code would exceed
// MaxCodeLength bytes.
func Assemble(b *Body, pool *cpool.Pool) (*Assembled, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	l := &layout{
		insns:    b.instructions,
		index:    make([]uint16, len(b.instructions)),
		wide:     make([]bool, len(b.instructions)),
		offsets:  make([]int, len(b.instructions)+1),
		labelPos: make([]int, b.labelCount+1),
	}
	for i, ins := range l.insns {
		if ins.Kind != KindSymbol {
			continue
		}
		index, err := ins.Sym.Intern(pool)
		if err != nil {
			return nil, errz.Newf(errz.KindOr(err, errz.MalformedReference),
				"%s in %s%s", ins.Op, b.sig.Name, b.sig.Descriptor).WithCause(err)
		}
		l.index[i] = index
	}

	for l.place() {
		// a widened jump can push others out of range
	}
	size := l.offsets[len(l.insns)]
	if size > MaxCodeLength {
		return nil, errz.Newf(errz.OffsetOverflow,
			"method %s%s needs %d bytes of code, limit is %d", b.sig.Name, b.sig.Descriptor, size, MaxCodeLength)
	}

	code, err := l.encode()
	if err != nil {
		return nil, errz.Newf(errz.KindOr(err, errz.MalformedCode),
			"method %s%s", b.sig.Name, b.sig.Descriptor).WithCause(err)
	}
	out := &Assembled{
		Code:         code,
		Offsets:      append([]int(nil), l.offsets...),
		LabelOffsets: append([]int(nil), l.labelPos...),
	}

	for _, h := range b.handlers {
		start, end := l.labelPos[h.Start], l.labelPos[h.End]
		if start == end {
			continue
		}
		if start > end {
			return nil, errz.Newf(errz.MalformedCode,
				"handler range of %s%s ends before it starts", b.sig.Name, b.sig.Descriptor)
		}
		raw := RawHandler{
			StartPC:   uint16(start),
			EndPC:     uint16(end),
			HandlerPC: uint16(l.labelPos[h.Handler]),
		}
		if !h.IsCatchAll() {
			if raw.CatchType, err = pool.InternClass(h.Type); err != nil {
				return nil, err
			}
		}
		out.Handlers = append(out.Handlers, raw)
	}

	for i, ins := range l.insns {
		if ins.Kind != KindLine || l.offsets[i] >= size {
			continue
		}
		entry := LineEntry{PC: uint16(l.offsets[i]), Line: uint16(ins.Int)}
		if n := len(out.Lines); n > 0 && out.Lines[n-1].PC == entry.PC {
			out.Lines[n-1] = entry
			continue
		}
		out.Lines = append(out.Lines, entry)
	}
	return out, nil
}

// place computes offsets from the current jump widths and widens every
// jump that no longer fits. It reports whether anything was widened.
func (l *layout) place() bool {
	pc := 0
	for i, ins := range l.insns {
		l.offsets[i] = pc
		if ins.IsMark() {
			l.labelPos[ins.Target] = pc
		}
		pc += l.size(i, pc)
	}
	l.offsets[len(l.insns)] = pc

	changed := false
	for i, ins := range l.insns {
		if ins.Kind != KindJump || l.wide[i] {
			continue
		}
		delta := l.labelPos[ins.Target] - l.offsets[i]
		if delta != int(int16(delta)) {
			l.wide[i] = true
			changed = true
		}
	}
	return changed
}

func (l *layout) size(i, pc int) int {
	ins := l.insns[i]
	switch ins.Kind {
	case KindLabel, KindLine:
		return 0
	case KindPlain:
		return 1
	case KindInt:
		if ins.Op == op.Sipush {
			return 3
		}
		return 2
	case KindLocal:
		if _, ok := op.ShortForm(ins.Op, ins.Local); ok {
			return 1
		}
		if ins.Local > math.MaxUint8 {
			return 4
		}
		return 2
	case KindIinc:
		if ins.Local > math.MaxUint8 || ins.Int != int32(int8(ins.Int)) {
			return 6
		}
		return 3
	case KindJump:
		if !l.wide[i] {
			return 3
		}
		if _, ok := op.Widen(ins.Op); ok {
			return 5
		}
		return 8
	case KindSymbol:
		switch ins.Op {
		case op.Ldc:
			if l.index[i] > math.MaxUint8 {
				return 3
			}
			return 2
		case op.Invokeinterface, op.Invokedynamic:
			return 5
		case op.Multianewarray:
			return 4
		}
		return 3
	case KindTableSwitch:
		return 1 + switchPadding(pc) + 12 + 4*len(ins.Targets)
	case KindLookupSwitch:
		return 1 + switchPadding(pc) + 8 + 8*len(ins.Targets)
	}
	return 1
}

func (l *layout) encode() ([]byte, error) {
	w := byteio.NewWriter()
	for i, ins := range l.insns {
		pc := l.offsets[i]
		rel := func(target Label) int32 {
			return int32(l.labelPos[target] - pc)
		}
		switch ins.Kind {
		case KindLabel, KindLine:
		case KindPlain:
			w.U8(uint8(ins.Op))
		case KindInt:
			if err := encodeImmediate(w, ins); err != nil {
				return nil, err
			}
		case KindLocal:
			if ins.Local < 0 || ins.Local > math.MaxUint16 {
				return nil, errz.Newf(errz.MalformedCode, "%s of local %d", ins.Op, ins.Local)
			}
			if short, ok := op.ShortForm(ins.Op, ins.Local); ok {
				w.U8(uint8(short))
			} else if ins.Local > math.MaxUint8 {
				w.U8(uint8(op.Wide))
				w.U8(uint8(ins.Op))
				w.U16(uint16(ins.Local))
			} else {
				w.U8(uint8(ins.Op))
				w.U8(uint8(ins.Local))
			}
		case KindIinc:
			if ins.Local < 0 || ins.Local > math.MaxUint16 || ins.Int != int32(int16(ins.Int)) {
				return nil, errz.Newf(errz.MalformedCode, "iinc %d by %d", ins.Local, ins.Int)
			}
			if l.size(i, pc) == 6 {
				w.U8(uint8(op.Wide))
				w.U8(uint8(op.Iinc))
				w.U16(uint16(ins.Local))
				w.S16(int16(ins.Int))
			} else {
				w.U8(uint8(op.Iinc))
				w.U8(uint8(ins.Local))
				w.S8(int8(ins.Int))
			}
		case KindJump:
			switch wideOp, unconditional := op.Widen(ins.Op); {
			case !l.wide[i]:
				w.U8(uint8(ins.Op))
				w.S16(int16(rel(ins.Target)))
			case unconditional:
				w.U8(uint8(wideOp))
				w.S32(rel(ins.Target))
			default:
				// if !cond skip; goto_w target
				w.U8(uint8(op.Invert(ins.Op)))
				w.S16(8)
				w.U8(uint8(op.GotoW))
				w.S32(rel(ins.Target) - 3)
			}
		case KindSymbol:
			index := l.index[i]
			switch ins.Op {
			case op.Ldc:
				if index > math.MaxUint8 {
					w.U8(uint8(op.LdcW))
					w.U16(index)
				} else {
					w.U8(uint8(op.Ldc))
					w.U8(uint8(index))
				}
			case op.Invokeinterface:
				mt, err := ParseMethodType(ins.Sym.Desc)
				if err != nil {
					return nil, err
				}
				w.U8(uint8(ins.Op))
				w.U16(index)
				w.U8(uint8(mt.ArgSlots() + 1))
				w.U8(0)
			case op.Invokedynamic:
				w.U8(uint8(ins.Op))
				w.U16(index)
				w.U16(0)
			case op.Multianewarray:
				if ins.Int < 1 || ins.Int > math.MaxUint8 {
					return nil, errz.Newf(errz.MalformedCode, "multianewarray of %d dimensions", ins.Int)
				}
				w.U8(uint8(ins.Op))
				w.U16(index)
				w.U8(uint8(ins.Int))
			default:
				w.U8(uint8(ins.Op))
				w.U16(index)
			}
		case KindTableSwitch:
			if len(ins.Targets) == 0 {
				return nil, errz.New(errz.MalformedCode, "tableswitch without cases")
			}
			w.U8(uint8(ins.Op))
			w.Zeros(switchPadding(pc))
			w.S32(rel(ins.Target))
			w.S32(ins.Int)
			w.S32(ins.Int + int32(len(ins.Targets)) - 1)
			for _, t := range ins.Targets {
				w.S32(rel(t))
			}
		case KindLookupSwitch:
			w.U8(uint8(ins.Op))
			w.Zeros(switchPadding(pc))
			w.S32(rel(ins.Target))
			w.S32(int32(len(ins.Targets)))
			for n, t := range ins.Targets {
				w.S32(ins.Keys[n])
				w.S32(rel(t))
			}
		}
	}
	return w.Bytes(), nil
}

func encodeImmediate(w *byteio.Writer, ins Instruction) error {
	switch ins.Op {
	case op.Bipush:
		if ins.Int == int32(int8(ins.Int)) {
			w.U8(uint8(ins.Op))
			w.S8(int8(ins.Int))
			return nil
		}
	case op.Sipush:
		if ins.Int == int32(int16(ins.Int)) {
			w.U8(uint8(ins.Op))
			w.S16(int16(ins.Int))
			return nil
		}
	case op.Newarray:
		if ins.Int >= 4 && ins.Int <= 11 {
			w.U8(uint8(ins.Op))
			w.U8(uint8(ins.Int))
			return nil
		}
	}
	return errz.Newf(errz.MalformedCode, "%s %d", ins.Op, ins.Int)
}

// Encode assembles the body and returns the contents of its Code attribute,
// everything after attribute_length. LocalVariableTable, StackMapTable and
// other code attributes of the original are not carried over. When stackMap
// is not nil, the StackMapTable it returns is written after the line table.
func Encode(b *Body, pool *cpool.Pool, maxStack, maxLocals int, stackMap StackMapFunc) ([]byte, error) {
	a, err := Assemble(b, pool)
	if err != nil {
		return nil, err
	}
	if maxStack > math.MaxUint16 || maxLocals > math.MaxUint16 {
		return nil, errz.Newf(errz.OffsetOverflow,
			"method %s%s needs max_stack %d and max_locals %d", b.sig.Name, b.sig.Descriptor, maxStack, maxLocals)
	}
	w := byteio.NewWriter()
	w.U16(uint16(maxStack))
	w.U16(uint16(maxLocals))
	w.U32(uint32(len(a.Code)))
	w.Raw(a.Code)
	w.U16(uint16(len(a.Handlers)))
	for _, h := range a.Handlers {
		w.U16(h.StartPC)
		w.U16(h.EndPC)
		w.U16(h.HandlerPC)
		w.U16(h.CatchType)
	}
	var frames []byte
	if stackMap != nil {
		if frames, err = stackMap(a); err != nil {
			return nil, err
		}
	}
	var count uint16
	lines := len(a.Lines) > 0 && len(a.Lines) <= math.MaxUint16
	if lines {
		count++
	}
	if frames != nil {
		count++
	}
	w.U16(count)
	if lines {
		name, err := pool.InternUtf8("LineNumberTable")
		if err != nil {
			return nil, err
		}
		w.U16(name)
		w.U32(uint32(2 + 4*len(a.Lines)))
		w.U16(uint16(len(a.Lines)))
		for _, line := range a.Lines {
			w.U16(line.PC)
			w.U16(line.Line)
		}
	}
	if frames != nil {
		name, err := pool.InternUtf8("StackMapTable")
		if err != nil {
			return nil, err
		}
		w.U16(name)
		w.U32(uint32(len(frames)))
		w.Raw(frames)
	}
	return w.Bytes(), nil
}
