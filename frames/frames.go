// Package frames computes the frame sizes a method body needs: its maximum
// operand-stack depth and its number of local-variable slots.
package frames

import (
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/op"
)

// Result holds the frame sizes of a method body.
type Result struct {
	MaxStack  int
	MaxLocals int
}

// Computer computes the frame sizes of a method body once its instructions
// are final. A Computer that also implements StackMapper supplies the
// StackMapTable of every method it sizes.
type Computer interface {
	Compute(b *bytecode.Body) (Result, error)
}

// StackMapper produces stack map frames. It is called after the body has
// been laid out, so frame offsets can be taken from layout. Class entries in
// the frames are interned into pool. A nil table writes no StackMapTable.
type StackMapper interface {
	StackMapTable(b *bytecode.Body, layout *bytecode.Assembled, pool *cpool.Pool) ([]byte, error)
}

// ComputerFunc adapts a function to the Computer interface.
type ComputerFunc func(b *bytecode.Body) (Result, error)

// Compute calls f(b).
func (f ComputerFunc) Compute(b *bytecode.Body) (Result, error) {
	return f(b)
}

// Default returns the built-in Computer, which tracks the stack depth
// along every control-flow path.
func Default() Computer {
	return analyzer{}
}

type analyzer struct{}

type pending struct {
	pos   int
	depth int
}

func (analyzer) Compute(b *bytecode.Body) (Result, error) {
	locals, err := MaxLocals(b)
	if err != nil {
		return Result{}, err
	}
	stack, err := MaxStack(b)
	if err != nil {
		return Result{}, err
	}
	return Result{MaxStack: stack, MaxLocals: locals}, nil
}

// MaxStack returns the deepest operand stack any path through b reaches.
// Exception handlers start with the thrown value on the stack.
func MaxStack(b *bytecode.Body) (int, error) {
	n := b.InstructionCount()
	marks := make(map[bytecode.Label]int, b.LabelCount())
	for i := 0; i < n; i++ {
		if ins := b.InstructionAt(i); ins.IsMark() {
			marks[ins.Target] = i
		}
	}
	seen := make([]bool, n+1)
	work := []pending{{pos: 0}}
	for i := 0; i < b.HandlerCount(); i++ {
		if pos, ok := marks[b.HandlerAt(i).Handler]; ok {
			work = append(work, pending{pos: pos, depth: 1})
		}
	}

	max := 0
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		depth := p.depth
		if depth > max {
			max = depth
		}
		for pos := p.pos; pos < n && !seen[pos]; pos++ {
			seen[pos] = true
			ins := b.InstructionAt(pos)
			if ins.IsPseudo() {
				continue
			}
			delta, err := StackDelta(ins)
			if err != nil {
				return 0, err
			}
			depth += delta
			if depth < 0 {
				return 0, errz.Newf(errz.MalformedCode, "%s at position %d of %s%s underflows the stack",
					ins.Op, pos, b.Name(), b.Descriptor())
			}
			if depth > max {
				max = depth
			}
			for _, target := range ins.References() {
				targetDepth := depth
				if ins.Op == op.Jsr {
					// the subroutine sees the pushed return address; the
					// fall-through does not
					depth--
				}
				if at, ok := marks[target]; ok && !seen[at] {
					work = append(work, pending{pos: at, depth: targetDepth})
				}
			}
			if op.EndsBlock(ins.Op) {
				break
			}
		}
	}
	return max, nil
}

// MaxLocals returns the number of local slots b uses, counting the
// receiver and parameters whether or not the code touches them.
func MaxLocals(b *bytecode.Body) (int, error) {
	mt, err := bytecode.ParseMethodType(b.Descriptor())
	if err != nil {
		return 0, err
	}
	max := mt.ArgSlots()
	if !b.IsStatic() {
		max++
	}
	for i := 0; i < b.InstructionCount(); i++ {
		ins := b.InstructionAt(i)
		if !ins.UsesLocal() {
			continue
		}
		width := 1
		switch ins.Op {
		case op.Lload, op.Dload, op.Lstore, op.Dstore:
			width = 2
		}
		if top := ins.Local + width; top > max {
			max = top
		}
	}
	return max, nil
}

// StackDelta returns the net change in operand-stack slots caused by ins.
func StackDelta(ins bytecode.Instruction) (int, error) {
	if ins.IsPseudo() {
		return 0, nil
	}
	info := op.GetInfo(ins.Op)
	if info.Stack != op.Varies {
		return info.Stack, nil
	}
	switch ins.Op {
	case op.Getstatic, op.Putstatic, op.Getfield, op.Putfield:
		t, err := bytecode.ParseFieldType(ins.Sym.Desc)
		if err != nil {
			return 0, err
		}
		switch ins.Op {
		case op.Getstatic:
			return t.Size(), nil
		case op.Putstatic:
			return -t.Size(), nil
		case op.Getfield:
			return t.Size() - 1, nil
		default:
			return -t.Size() - 1, nil
		}
	case op.Invokevirtual, op.Invokespecial, op.Invokestatic, op.Invokeinterface, op.Invokedynamic:
		mt, err := bytecode.ParseMethodType(ins.Sym.Desc)
		if err != nil {
			return 0, err
		}
		delta := mt.Return.Size() - mt.ArgSlots()
		if ins.Op != op.Invokestatic && ins.Op != op.Invokedynamic {
			delta--
		}
		return delta, nil
	case op.Multianewarray:
		return 1 - int(ins.Int), nil
	}
	return 0, errz.Newf(errz.MalformedCode, "no stack effect for %s", ins.Op)
}
