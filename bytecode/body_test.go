package bytecode

import (
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/op"
)

func TestNewBodyImmutability(t *testing.T) {
	insns := []Instruction{
		Local(op.Iload, 0),
		TableSwitch(0, 1, 2),
		Mark(1),
		Mark(2),
		Plain(op.Ireturn),
	}
	handlers := []Handler{{Start: 1, End: 2, Handler: 2}}
	b := NewBody(BodyParams{
		Signature:    Signature{Name: "m", Descriptor: "(I)I", Static: true},
		Instructions: insns,
		Handlers:     handlers,
		MaxLocals:    1,
	})

	insns[0] = Plain(op.Nop)
	insns[1].Targets[0] = 9
	handlers[0].Type = "java/lang/Throwable"

	require.Equal(t, Local(op.Iload, 0), b.InstructionAt(0))
	require.Equal(t, []Label{2}, b.InstructionAt(1).Targets)
	require.True(t, b.HandlerAt(0).IsCatchAll())

	ins := b.InstructionAt(1)
	ins.Targets[0] = 7
	require.Equal(t, Label(2), b.InstructionAt(1).Targets[0])

	require.Equal(t, 2, b.LabelCount())
	require.Equal(t, "m", b.Name())
	require.Equal(t, "(I)I", b.Descriptor())
	require.True(t, b.IsStatic())
	require.Equal(t, 1, b.MaxLocals())
	require.NoError(t, b.Validate())
}

func TestValidateReportsEveryViolation(t *testing.T) {
	b := NewBody(BodyParams{
		Instructions: []Instruction{
			Jump(op.Goto, 3),
			Mark(1),
			Mark(1),
			Plain(op.Return),
		},
		Handlers: []Handler{{Start: 1, End: 4, Handler: 1}},
	})
	err := b.Validate()
	require.True(t, errz.Is(err, errz.MalformedCode))
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 3)
}

func TestValidateSwitchDefault(t *testing.T) {
	b := NewBody(BodyParams{
		Instructions: []Instruction{
			Local(op.Iload, 0),
			LookupSwitch(NoLabel, []int32{1}, []Label{1}),
			Mark(1),
			Plain(op.Return),
		},
	})
	require.True(t, errz.Is(b.Validate(), errz.MalformedCode))
}

func TestBodyEdits(t *testing.T) {
	b := NewBody(BodyParams{
		Signature:    Signature{Name: "f", Descriptor: "(I)I", Static: true},
		Instructions: []Instruction{Local(op.Iload, 0), Plain(op.Ireturn)},
	})

	inserted := b.InsertBefore(1, Plain(op.Iconst1), Plain(op.Iadd))
	require.Equal(t, 2, b.InstructionCount())
	require.Equal(t, 4, inserted.InstructionCount())
	require.Equal(t, op.Iconst1, inserted.InstructionAt(1).Op)
	require.Equal(t, op.Ireturn, inserted.InstructionAt(3).Op)

	appended := b.InsertBefore(2, Plain(op.Nop))
	require.Equal(t, op.Nop, appended.InstructionAt(2).Op)

	removed := inserted.Remove(0)
	require.Equal(t, 3, removed.InstructionCount())
	require.Equal(t, op.Iconst1, removed.InstructionAt(0).Op)
	require.Equal(t, 4, inserted.InstructionCount())

	remapped := b.RemapLocal(0, 0, 5)
	require.Equal(t, 5, remapped.InstructionAt(0).Local)
	require.Equal(t, 0, b.InstructionAt(0).Local)
	require.Equal(t, 0, b.RemapLocal(0, 1, 5).InstructionAt(0).Local)
	require.Equal(t, Plain(op.Ireturn), b.RemapLocal(1, 0, 5).InstructionAt(1))

	require.Panics(t, func() { b.InsertBefore(3) })
	require.Panics(t, func() { b.Remove(2) })
}

func TestBuilderSharesLabelArena(t *testing.T) {
	src := NewBody(BodyParams{
		Instructions: []Instruction{Mark(1), Plain(op.Nop), Mark(2), Plain(op.Return), Mark(3), Plain(op.Athrow)},
		Handlers:     []Handler{{Start: 1, End: 2, Handler: 3, Type: "java/io/IOException"}},
	})
	b := NewBuilder(src)
	require.Equal(t, Label(4), b.NewLabel())
	require.Equal(t, Label(5), b.NewLabel())
	require.Equal(t, 0, b.Len())

	b.PrependHandlers(Handler{Start: 1, End: 2, Handler: 3})
	b.AddHandler(Handler{Start: 1, End: 2, Handler: 3, Type: "java/lang/Error"})
	out := b.Body()
	require.Equal(t, 3, out.HandlerCount())
	require.True(t, out.HandlerAt(0).IsCatchAll())
	require.Equal(t, "java/io/IOException", out.HandlerAt(1).Type)
	require.Equal(t, "java/lang/Error", out.HandlerAt(2).Type)
	require.Equal(t, 5, out.LabelCount())
}

func TestStats(t *testing.T) {
	b := NewBody(BodyParams{
		Instructions: []Instruction{
			Line(3),
			Local(op.Iload, 0),
			Jump(op.Ifeq, 1),
			Plain(op.Nop),
			Mark(1),
			Plain(op.Return),
		},
		Handlers: []Handler{{Start: 1, End: 1, Handler: 1}},
	})
	require.Equal(t, Stats{InstructionCount: 4, BranchCount: 1, HandlerCount: 1, LabelCount: 1}, b.Stats())
}
