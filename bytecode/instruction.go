package bytecode

import "github.com/deepnoodle-ai/classweave/op"

// Label is a position marker scoped to one Body. Labels are handles into the
// body's label arena and resolve to byte offsets only when the body is
// assembled.
type Label int

// NoLabel is the zero Label. It is never defined.
const NoLabel Label = 0

// Kind selects which operand fields of an Instruction are meaningful.
type Kind uint8

const (
	KindPlain        Kind = iota // no operand
	KindInt                      // Int: bipush, sipush and newarray immediates
	KindLocal                    // Local: loads, stores and ret
	KindIinc                     // Local and Int (the delta)
	KindJump                     // Target
	KindSymbol                   // Sym, and Int for multianewarray dimensions
	KindTableSwitch              // Int is the low key, Targets the cases, Target the default
	KindLookupSwitch             // Keys and Targets pairwise, Target the default
	KindLabel                    // pseudo: defines Target at this position
	KindLine                     // pseudo: the following code starts source line Int
)

// Instruction is one decoded opcode and its operands. Short and wide
// encodings are normalized away: ILOAD_2 decodes as ILOAD with Local 2,
// GOTO_W as GOTO and LDC_W as LDC. The assembler picks the encoding.
type Instruction struct {
	Op      op.Code
	Kind    Kind
	Int     int32
	Local   int
	Target  Label
	Sym     Symbol
	Keys    []int32
	Targets []Label
}

// Plain returns an instruction without operands.
func Plain(code op.Code) Instruction {
	return Instruction{Op: code, Kind: KindPlain}
}

// Push returns a bipush, sipush or newarray instruction.
func Push(code op.Code, value int32) Instruction {
	return Instruction{Op: code, Kind: KindInt, Int: value}
}

// Local returns a load, store or ret of the given local slot.
func Local(code op.Code, slot int) Instruction {
	return Instruction{Op: code, Kind: KindLocal, Local: slot}
}

// Iinc returns an iinc of slot by delta.
func Iinc(slot int, delta int32) Instruction {
	return Instruction{Op: op.Iinc, Kind: KindIinc, Local: slot, Int: delta}
}

// Jump returns a branch to target.
func Jump(code op.Code, target Label) Instruction {
	return Instruction{Op: code, Kind: KindJump, Target: target}
}

// Ref returns an instruction whose operand is a constant-pool symbol.
func Ref(code op.Code, sym Symbol) Instruction {
	return Instruction{Op: code, Kind: KindSymbol, Sym: sym}
}

// MultiArray returns a multianewarray of the given array class.
func MultiArray(class string, dims int32) Instruction {
	return Instruction{Op: op.Multianewarray, Kind: KindSymbol, Sym: ClassRef(class), Int: dims}
}

// TableSwitch returns a tableswitch whose cases cover low, low+1, ...
func TableSwitch(low int32, dflt Label, targets ...Label) Instruction {
	return Instruction{
		Op:      op.Tableswitch,
		Kind:    KindTableSwitch,
		Int:     low,
		Target:  dflt,
		Targets: copyLabels(targets),
	}
}

// LookupSwitch returns a lookupswitch. Keys must be sorted ascending and
// pair up with targets.
func LookupSwitch(dflt Label, keys []int32, targets []Label) Instruction {
	return Instruction{
		Op:      op.Lookupswitch,
		Kind:    KindLookupSwitch,
		Target:  dflt,
		Keys:    copyKeys(keys),
		Targets: copyLabels(targets),
	}
}

// Mark returns the pseudo-instruction defining l at the current position.
func Mark(l Label) Instruction {
	return Instruction{Kind: KindLabel, Target: l}
}

// Line returns the pseudo-instruction starting source line n.
func Line(n int) Instruction {
	return Instruction{Kind: KindLine, Int: int32(n)}
}

// IsPseudo reports whether the instruction occupies no bytes.
func (i Instruction) IsPseudo() bool {
	return i.Kind == KindLabel || i.Kind == KindLine
}

// IsMark reports whether the instruction defines a label.
func (i Instruction) IsMark() bool {
	return i.Kind == KindLabel
}

// References returns the labels the instruction branches to, default
// first for switches.
func (i Instruction) References() []Label {
	switch i.Kind {
	case KindJump:
		return []Label{i.Target}
	case KindTableSwitch, KindLookupSwitch:
		refs := make([]Label, 0, len(i.Targets)+1)
		refs = append(refs, i.Target)
		return append(refs, i.Targets...)
	}
	return nil
}

// Relabel returns a copy of the instruction with every label, defined or
// referenced, passed through fn.
func (i Instruction) Relabel(fn func(Label) Label) Instruction {
	switch i.Kind {
	case KindJump, KindLabel:
		i.Target = fn(i.Target)
	case KindTableSwitch, KindLookupSwitch:
		i.Target = fn(i.Target)
		targets := make([]Label, len(i.Targets))
		for n, t := range i.Targets {
			targets[n] = fn(t)
		}
		i.Targets = targets
	}
	return i
}

// UsesLocal reports whether the instruction reads or writes a local slot.
func (i Instruction) UsesLocal() bool {
	return i.Kind == KindLocal || i.Kind == KindIinc
}

// clone returns a deep copy so bodies never share switch tables.
func (i Instruction) clone() Instruction {
	i.Keys = copyKeys(i.Keys)
	i.Targets = copyLabels(i.Targets)
	return i
}
