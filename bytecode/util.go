package bytecode

// copyInstructions returns a deep copy of the given instruction slice.
func copyInstructions(src []Instruction) []Instruction {
	if src == nil {
		return nil
	}
	dst := make([]Instruction, len(src))
	for i, ins := range src {
		dst[i] = ins.clone()
	}
	return dst
}

// copyHandlers returns a copy of the given exception handler slice.
func copyHandlers(src []Handler) []Handler {
	if src == nil {
		return nil
	}
	dst := make([]Handler, len(src))
	copy(dst, src)
	return dst
}

func copyLabels(src []Label) []Label {
	if src == nil {
		return nil
	}
	dst := make([]Label, len(src))
	copy(dst, src)
	return dst
}

func copyKeys(src []int32) []int32 {
	if src == nil {
		return nil
	}
	dst := make([]int32, len(src))
	copy(dst, src)
	return dst
}
