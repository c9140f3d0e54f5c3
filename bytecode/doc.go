// Package bytecode provides the instruction-level model of a method body.
//
// A [Body] is an immutable sequence of [Instruction] values plus an
// exception table. Branch targets are [Label] handles rather than byte
// offsets, and constant-pool operands are resolved [Symbol] values rather
// than pool indices, so instructions can move between methods and classes
// freely. Offsets and indices are only assigned again by [Assemble].
//
// # Immutability
//
// Bodies are never modified after construction:
//
//   - Constructors copy input slices
//   - Accessors return copies, using index-based access
//   - Edits such as [Body.InsertBefore] return a new Body
//
// Use a [Builder] to produce a new body from an old one:
//
//	b := bytecode.NewBuilder(body)
//	end := b.NewLabel()
//	for i := 0; i < body.InstructionCount(); i++ {
//	    b.Emit(body.InstructionAt(i))
//	}
//	b.Emit(bytecode.Mark(end))
//	out := b.Body()
//
// # Labels
//
// Labels are small integers scoped to one body's label arena. A label is
// defined by a [Mark] pseudo-instruction and every label that an
// instruction or handler references must be defined exactly once; see
// [Body.Validate].
//
// # Encoding
//
// [Decode] turns the contents of a Code attribute into a Body, and
// [Encode] turns a Body back into Code attribute contents. Short forms such
// as ILOAD_0, the wide prefix, LDC_W and GOTO_W are chosen automatically;
// short jumps whose target is out of reach are widened.
package bytecode
