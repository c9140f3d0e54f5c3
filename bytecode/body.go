package bytecode

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/deepnoodle-ai/classweave/errz"
)

// Signature identifies the method a Body belongs to.
type Signature struct {
	Name       string
	Descriptor string
	Static     bool
}

// Body is the decoded code of one method. It is immutable after creation;
// edits return a new Body.
type Body struct {
	sig          Signature
	instructions []Instruction
	handlers     []Handler
	maxStack     int
	maxLocals    int
	labelCount   int
}

// BodyParams contains parameters for creating a new Body.
type BodyParams struct {
	Signature    Signature
	Instructions []Instruction
	Handlers     []Handler
	MaxStack     int
	MaxLocals    int
	// LabelCount is the size of the label arena. Labels 1 through
	// LabelCount are valid. It is raised to cover every label in use.
	LabelCount int
}

// NewBody creates a new immutable Body from the given parameters. Input
// slices are copied.
func NewBody(params BodyParams) *Body {
	b := &Body{
		sig:          params.Signature,
		instructions: copyInstructions(params.Instructions),
		handlers:     copyHandlers(params.Handlers),
		maxStack:     params.MaxStack,
		maxLocals:    params.MaxLocals,
		labelCount:   params.LabelCount,
	}
	raise := func(l Label) Label {
		if int(l) > b.labelCount {
			b.labelCount = int(l)
		}
		return l
	}
	for _, ins := range b.instructions {
		ins.Relabel(raise)
	}
	for _, h := range b.handlers {
		raise(h.Start)
		raise(h.End)
		raise(h.Handler)
	}
	return b
}

// Params returns a copy of the parameters the body was built from.
func (b *Body) Params() BodyParams {
	return BodyParams{
		Signature:    b.sig,
		Instructions: copyInstructions(b.instructions),
		Handlers:     copyHandlers(b.handlers),
		MaxStack:     b.maxStack,
		MaxLocals:    b.maxLocals,
		LabelCount:   b.labelCount,
	}
}

// Signature returns the name, descriptor and staticness of the method.
func (b *Body) Signature() Signature {
	return b.sig
}

// Name returns the method name.
func (b *Body) Name() string {
	return b.sig.Name
}

// Descriptor returns the method descriptor.
func (b *Body) Descriptor() string {
	return b.sig.Descriptor
}

// IsStatic returns true if the method has no receiver.
func (b *Body) IsStatic() bool {
	return b.sig.Static
}

// MaxStack returns the max_stack the body was decoded with.
func (b *Body) MaxStack() int {
	return b.maxStack
}

// MaxLocals returns the max_locals the body was decoded with.
func (b *Body) MaxLocals() int {
	return b.maxLocals
}

// LabelCount returns the size of the label arena.
func (b *Body) LabelCount() int {
	return b.labelCount
}

// InstructionCount returns the number of instructions, pseudo-instructions
// included.
func (b *Body) InstructionCount() int {
	return len(b.instructions)
}

// InstructionAt returns a copy of the instruction at the given index.
func (b *Body) InstructionAt(index int) Instruction {
	return b.instructions[index].clone()
}

// HandlerCount returns the number of exception handlers.
func (b *Body) HandlerCount() int {
	return len(b.handlers)
}

// HandlerAt returns the exception handler at the given index.
func (b *Body) HandlerAt(index int) Handler {
	return b.handlers[index]
}

// InsertBefore returns a body with ins inserted ahead of position pos. A
// pos equal to InstructionCount appends. It panics if pos is out of range.
func (b *Body) InsertBefore(pos int, ins ...Instruction) *Body {
	if pos < 0 || pos > len(b.instructions) {
		panic(fmt.Sprintf("bytecode: insert position %d out of range [0, %d]", pos, len(b.instructions)))
	}
	p := b.Params()
	out := make([]Instruction, 0, len(p.Instructions)+len(ins))
	out = append(out, p.Instructions[:pos]...)
	out = append(out, ins...)
	out = append(out, p.Instructions[pos:]...)
	p.Instructions = out
	return NewBody(p)
}

// Remove returns a body without the instruction at pos. It panics if pos
// is out of range.
func (b *Body) Remove(pos int) *Body {
	if pos < 0 || pos >= len(b.instructions) {
		panic(fmt.Sprintf("bytecode: remove position %d out of range [0, %d)", pos, len(b.instructions)))
	}
	p := b.Params()
	p.Instructions = append(p.Instructions[:pos], p.Instructions[pos+1:]...)
	return NewBody(p)
}

// RemapLocal returns a body in which the instruction at pos refers to slot
// to instead of from. Instructions that do not use slot from are left
// unchanged.
func (b *Body) RemapLocal(pos, from, to int) *Body {
	p := b.Params()
	if ins := &p.Instructions[pos]; ins.UsesLocal() && ins.Local == from {
		ins.Local = to
	}
	return NewBody(p)
}

// Validate checks that every label referenced by an instruction or handler
// is defined exactly once, and that every switch has a default. All
// violations are reported together.
func (b *Body) Validate() error {
	var result *multierror.Error
	defined := make(map[Label]int, b.labelCount)
	for pos, ins := range b.instructions {
		if !ins.IsMark() {
			continue
		}
		if ins.Target == NoLabel {
			result = multierror.Append(result, fmt.Errorf("position %d defines the zero label", pos))
			continue
		}
		if prev, ok := defined[ins.Target]; ok {
			result = multierror.Append(result,
				fmt.Errorf("label %d defined at positions %d and %d", ins.Target, prev, pos))
			continue
		}
		defined[ins.Target] = pos
	}
	check := func(what string, l Label) {
		if _, ok := defined[l]; !ok {
			result = multierror.Append(result, fmt.Errorf("%s references undefined label %d", what, l))
		}
	}
	for pos, ins := range b.instructions {
		if (ins.Kind == KindTableSwitch || ins.Kind == KindLookupSwitch) && ins.Target == NoLabel {
			result = multierror.Append(result, fmt.Errorf("switch at position %d has no default", pos))
			continue
		}
		if ins.Kind == KindLookupSwitch && len(ins.Keys) != len(ins.Targets) {
			result = multierror.Append(result,
				fmt.Errorf("lookupswitch at position %d has %d keys and %d targets", pos, len(ins.Keys), len(ins.Targets)))
		}
		for _, l := range ins.References() {
			check(fmt.Sprintf("%s at position %d", ins.Op, pos), l)
		}
	}
	for n, h := range b.handlers {
		what := fmt.Sprintf("handler %d", n)
		check(what, h.Start)
		check(what, h.End)
		check(what, h.Handler)
	}
	if err := result.ErrorOrNil(); err != nil {
		return errz.Newf(errz.MalformedCode, "method %s%s has invalid labels", b.sig.Name, b.sig.Descriptor).WithCause(err)
	}
	return nil
}

// Stats returns statistics about the body.
func (b *Body) Stats() Stats {
	s := Stats{HandlerCount: len(b.handlers), LabelCount: b.labelCount}
	for _, ins := range b.instructions {
		switch ins.Kind {
		case KindLabel, KindLine:
		case KindJump, KindTableSwitch, KindLookupSwitch:
			s.InstructionCount++
			s.BranchCount++
		default:
			s.InstructionCount++
		}
	}
	return s
}
