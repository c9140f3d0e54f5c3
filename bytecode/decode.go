package bytecode

import (
	"sort"

	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/internal/byteio"
	"github.com/deepnoodle-ai/classweave/op"
)

// MaxCodeLength is the largest code array a method may have.
const MaxCodeLength = 65535

// rawInstruction is an instruction whose branch targets are still byte
// offsets, default first for switches.
type rawInstruction struct {
	offset  int
	ins     Instruction
	targets []int
}

type rawHandler struct {
	start, end, handler int
	catchType           string
}

type lineEntry struct {
	pc, line int
}

// Decode decodes the contents of a Code attribute, everything after its
// attribute_length, into a Body. base is the offset of attr within the
// class file and is only used in error reports.
func Decode(attr []byte, pool *cpool.Pool, sig Signature, base int) (*Body, error) {
	r := byteio.NewReaderAt(attr, base)
	maxStack := int(r.U16())
	maxLocals := int(r.U16())
	codeLen := int(r.U32())
	if err := r.Err(); err != nil {
		return nil, err
	}
	if codeLen == 0 || codeLen > MaxCodeLength {
		return nil, errz.At(errz.MalformedCode, r.Offset()-4, "code length %d", codeLen)
	}
	codeBase := r.Offset()
	code := r.Bytes(codeLen)
	if err := r.Err(); err != nil {
		return nil, err
	}

	var handlers []rawHandler
	for n := int(r.U16()); n > 0 && r.Err() == nil; n-- {
		at := r.Offset()
		h := rawHandler{start: int(r.U16()), end: int(r.U16()), handler: int(r.U16())}
		if catchType := r.U16(); catchType != 0 && r.Err() == nil {
			name, err := pool.ClassNameAt(catchType)
			if err != nil {
				return nil, errz.At(errz.MalformedReference, at+6, "exception handler catch type").WithCause(err)
			}
			h.catchType = name
		}
		handlers = append(handlers, h)
	}

	var lines []lineEntry
	for n := int(r.U16()); n > 0 && r.Err() == nil; n-- {
		nameIndex := r.U16()
		length := int(r.U32())
		at := r.Offset()
		data := r.Bytes(length)
		if r.Err() != nil {
			break
		}
		name, err := pool.Utf8At(nameIndex)
		if err != nil {
			return nil, errz.At(errz.MalformedReference, at-6, "code attribute name").WithCause(err)
		}
		if name != "LineNumberTable" {
			continue
		}
		lr := byteio.NewReaderAt(data, at)
		for count := int(lr.U16()); count > 0 && lr.Err() == nil; count-- {
			lines = append(lines, lineEntry{pc: int(lr.U16()), line: int(lr.U16())})
		}
		if err := lr.Err(); err != nil {
			return nil, err
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errz.At(errz.MalformedCode, r.Offset(), "%d trailing bytes in Code attribute", r.Len())
	}

	raws, err := decodeInstructions(code, codeBase, pool)
	if err != nil {
		return nil, err
	}
	return link(raws, handlers, lines, codeLen, codeBase, BodyParams{
		Signature: sig,
		MaxStack:  maxStack,
		MaxLocals: maxLocals,
	})
}

// link turns byte-offset branch targets into labels and interleaves label
// and line markers with the instructions.
func link(raws []rawInstruction, handlers []rawHandler, lines []lineEntry, codeLen, codeBase int, params BodyParams) (*Body, error) {
	boundary := make(map[int]bool, len(raws)+1)
	for _, raw := range raws {
		boundary[raw.offset] = true
	}
	wanted := map[int]bool{}
	for _, raw := range raws {
		for _, t := range raw.targets {
			if !boundary[t] {
				return nil, errz.At(errz.MalformedReference, codeBase+raw.offset,
					"%s branches to %d, which is not an instruction boundary", raw.ins.Op, t)
			}
			wanted[t] = true
		}
	}
	for n, h := range handlers {
		if !boundary[h.start] || !boundary[h.handler] || !(boundary[h.end] || h.end == codeLen) {
			return nil, errz.Newf(errz.MalformedReference,
				"exception handler %d range [%d, %d) -> %d is not on instruction boundaries", n, h.start, h.end, h.handler)
		}
		if h.start >= h.end {
			return nil, errz.Newf(errz.MalformedCode, "exception handler %d has empty range [%d, %d)", n, h.start, h.end)
		}
		wanted[h.start] = true
		wanted[h.end] = true
		wanted[h.handler] = true
	}

	offsets := make([]int, 0, len(wanted))
	for off := range wanted {
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)
	labels := make(map[int]Label, len(offsets))
	for n, off := range offsets {
		labels[off] = Label(n + 1)
	}

	linesAt := map[int][]int{}
	for _, l := range lines {
		if boundary[l.pc] {
			linesAt[l.pc] = append(linesAt[l.pc], l.line)
		}
	}

	out := make([]Instruction, 0, len(raws)+len(offsets)+len(lines))
	for _, raw := range raws {
		if l, ok := labels[raw.offset]; ok {
			out = append(out, Mark(l))
		}
		for _, line := range linesAt[raw.offset] {
			out = append(out, Line(line))
		}
		ins := raw.ins
		switch ins.Kind {
		case KindJump:
			ins.Target = labels[raw.targets[0]]
		case KindTableSwitch, KindLookupSwitch:
			ins.Target = labels[raw.targets[0]]
			ins.Targets = make([]Label, len(raw.targets)-1)
			for n, t := range raw.targets[1:] {
				ins.Targets[n] = labels[t]
			}
		}
		out = append(out, ins)
	}
	if l, ok := labels[codeLen]; ok {
		out = append(out, Mark(l))
	}

	params.Instructions = out
	params.LabelCount = len(offsets)
	for _, h := range handlers {
		params.Handlers = append(params.Handlers, Handler{
			Start:   labels[h.start],
			End:     labels[h.end],
			Handler: labels[h.handler],
			Type:    h.catchType,
		})
	}
	return NewBody(params), nil
}

func decodeInstructions(data []byte, codeBase int, pool *cpool.Pool) ([]rawInstruction, error) {
	r := byteio.NewReaderAt(data, codeBase)
	var raws []rawInstruction
	for r.Len() > 0 {
		pc := r.Pos()
		code := op.Code(r.U8())
		info := op.GetInfo(code)
		raw := rawInstruction{offset: pc}
		symbol := func(index uint16) Symbol {
			if r.Err() != nil {
				return Symbol{}
			}
			sym, err := SymbolAt(pool, index)
			if err == nil {
				err = checkOperand(code, sym)
			}
			if err != nil {
				r.Fail(errz.At(errz.MalformedReference, codeBase+pc, "%s operand", code).WithCause(err))
			}
			return sym
		}
		switch info.Format {
		case op.FormatNone:
			raw.ins = Plain(code)
		case op.FormatByte:
			if code == op.Newarray {
				raw.ins = Push(code, int32(r.U8()))
			} else {
				raw.ins = Push(code, int32(r.S8()))
			}
		case op.FormatShort:
			raw.ins = Push(code, int32(r.S16()))
		case op.FormatLocal:
			raw.ins = Local(code, int(r.U8()))
		case op.FormatImplicit:
			base, index, _ := op.Implicit(code)
			raw.ins = Local(base, index)
		case op.FormatConstByte:
			raw.ins = Ref(op.Ldc, symbol(uint16(r.U8())))
		case op.FormatConst:
			if code == op.LdcW {
				code = op.Ldc
			}
			raw.ins = Ref(code, symbol(r.U16()))
		case op.FormatBranch:
			raw.ins = Jump(code, NoLabel)
			raw.targets = []int{pc + int(r.S16())}
		case op.FormatBranchWide:
			raw.ins = Jump(op.Narrow(code), NoLabel)
			raw.targets = []int{pc + int(r.S32())}
		case op.FormatIinc:
			raw.ins = Iinc(int(r.U8()), int32(r.S8()))
		case op.FormatTableSwitch:
			r.Skip(switchPadding(pc))
			dflt := pc + int(r.S32())
			low := r.S32()
			high := r.S32()
			if r.Err() == nil && (high < low || (int64(high)-int64(low)+1)*4 > int64(r.Len())) {
				return nil, errz.At(errz.MalformedCode, codeBase+pc, "tableswitch range [%d, %d]", low, high)
			}
			raw.targets = []int{dflt}
			for n := int64(low); n <= int64(high) && r.Err() == nil; n++ {
				raw.targets = append(raw.targets, pc+int(r.S32()))
			}
			raw.ins = Instruction{Op: code, Kind: KindTableSwitch, Int: low}
		case op.FormatLookupSwitch:
			r.Skip(switchPadding(pc))
			dflt := pc + int(r.S32())
			pairs := int(r.S32())
			if r.Err() == nil && (pairs < 0 || pairs*8 > r.Len()) {
				return nil, errz.At(errz.MalformedCode, codeBase+pc, "lookupswitch with %d pairs", pairs)
			}
			raw.targets = []int{dflt}
			keys := make([]int32, 0, pairs)
			for n := 0; n < pairs && r.Err() == nil; n++ {
				keys = append(keys, r.S32())
				raw.targets = append(raw.targets, pc+int(r.S32()))
			}
			raw.ins = Instruction{Op: code, Kind: KindLookupSwitch, Keys: keys}
		case op.FormatInterface:
			raw.ins = Ref(code, symbol(r.U16()))
			r.Skip(2)
		case op.FormatDynamic:
			raw.ins = Ref(code, symbol(r.U16()))
			r.Skip(2)
		case op.FormatMultiArray:
			raw.ins = Ref(code, symbol(r.U16()))
			raw.ins.Int = int32(r.U8())
		case op.FormatWide:
			modified := op.Code(r.U8())
			switch {
			case modified == op.Iinc:
				raw.ins = Iinc(int(r.U16()), int32(r.S16()))
			case op.GetInfo(modified).Format == op.FormatLocal:
				raw.ins = Local(modified, int(r.U16()))
			case r.Err() == nil:
				return nil, errz.At(errz.MalformedCode, codeBase+pc, "wide applied to %s", modified)
			}
		default:
			return nil, errz.At(errz.MalformedCode, codeBase+pc, "undefined opcode 0x%02x", uint8(code))
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// switchPadding returns the number of padding bytes after a switch opcode
// at pc, aligning its operands to a multiple of four.
func switchPadding(pc int) int {
	return 3 - pc%4
}

// checkOperand verifies that the pool entry an instruction names is of a
// kind the instruction accepts.
func checkOperand(code op.Code, sym Symbol) error {
	var ok bool
	switch code {
	case op.Ldc, op.LdcW:
		switch sym.Tag {
		case cpool.Integer, cpool.Float, cpool.String, cpool.Class, cpool.MethodType, cpool.MethodHandle:
			ok = true
		case cpool.Dynamic:
			ok = !sym.Wide()
		}
	case op.Ldc2W:
		ok = sym.Tag == cpool.Long || sym.Tag == cpool.Double || (sym.Tag == cpool.Dynamic && sym.Wide())
	case op.Getstatic, op.Putstatic, op.Getfield, op.Putfield:
		ok = sym.Tag == cpool.Fieldref
	case op.Invokevirtual:
		ok = sym.Tag == cpool.Methodref
	case op.Invokespecial, op.Invokestatic:
		ok = sym.Tag == cpool.Methodref || sym.Tag == cpool.InterfaceMethodref
	case op.Invokeinterface:
		ok = sym.Tag == cpool.InterfaceMethodref
	case op.Invokedynamic:
		ok = sym.Tag == cpool.InvokeDynamic
	case op.New, op.Anewarray, op.Checkcast, op.Instanceof, op.Multianewarray:
		ok = sym.Tag == cpool.Class
	}
	if !ok {
		return errz.Newf(errz.MalformedReference, "%s cannot take a %s operand", code, sym.Tag)
	}
	return nil
}
