package visit

import (
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
)

// Remapper is a stage that renames classes referenced from method bodies:
// member owners, descriptors, class constants, method types and handler
// catch types. Names missing from Names are left alone.
type Remapper struct {
	Base
	Names map[string]string
}

// NewRemapper returns a Remapper for the given old-to-new name table.
func NewRemapper(names map[string]string) *Remapper {
	return &Remapper{Names: names}
}

func (r *Remapper) Name() string { return "remap" }

// Map returns the new name for class, or class itself.
func (r *Remapper) Map(class string) string {
	if to, ok := r.Names[class]; ok {
		return to
	}
	return class
}

func (r *Remapper) VisitMethod(_ *classfile.Class, m *classfile.Member) (Action, InstructionVisitor, error) {
	if len(r.Names) == 0 || !m.HasCode() {
		return Keep, nil, nil
	}
	return Keep, RemapBody(r.Map), nil
}

// RemapBody returns an instruction visitor renaming classes through fn.
func RemapBody(fn func(string) string) InstructionVisitor {
	return &remapVisitor{fn: fn}
}

type remapVisitor struct {
	fn func(string) string
}

func (v *remapVisitor) VisitInstruction(ins bytecode.Instruction, out *bytecode.Builder) error {
	out.Emit(RemapInstruction(ins, v.fn))
	return nil
}

func (v *remapVisitor) VisitEnd(out *bytecode.Builder) error {
	out.SetHandlers(RemapHandlers(out.Handlers(), v.fn))
	return nil
}

// RemapInstruction returns ins with the class names in its symbolic
// operand passed through fn.
func RemapInstruction(ins bytecode.Instruction, fn func(string) string) bytecode.Instruction {
	if ins.Kind == bytecode.KindSymbol && !ins.Sym.Pinned() {
		ins.Sym = ins.Sym.MapClasses(fn)
	}
	return ins
}

// RemapHandlers returns hs with catch types passed through fn.
func RemapHandlers(hs []bytecode.Handler, fn func(string) string) []bytecode.Handler {
	for i := range hs {
		if !hs[i].IsCatchAll() {
			hs[i].Type = bytecode.MapClassName(hs[i].Type, fn)
		}
	}
	return hs
}
