package bytecode

// Stats contains statistics about a method body.
type Stats struct {
	// InstructionCount is the number of real instructions, not counting
	// label and line markers.
	InstructionCount int

	// BranchCount is the number of jumps and switches.
	BranchCount int

	// HandlerCount is the number of exception-table entries.
	HandlerCount int

	// LabelCount is the size of the label arena.
	LabelCount int
}
