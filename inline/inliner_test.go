package inline_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/cpool"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/inline"
	"github.com/deepnoodle-ai/classweave/op"
	"github.com/deepnoodle-ai/classweave/visit"
)

var targetF = inline.Target{Owner: "demo/Target", Name: "f", Descriptor: "(I)I"}

func callF() bytecode.Instruction {
	return bytecode.Ref(op.Invokestatic, bytecode.MethodRef(targetF.Owner, targetF.Name, targetF.Descriptor))
}

func body(sig bytecode.Signature, maxLocals int, handlers []bytecode.Handler, ins ...bytecode.Instruction) *bytecode.Body {
	return bytecode.NewBody(bytecode.BodyParams{
		Signature:    sig,
		Instructions: ins,
		Handlers:     handlers,
		MaxLocals:    maxLocals,
	})
}

func resolved(t inline.Target, b *bytecode.Body) *inline.Resolved {
	return &inline.Resolved{Target: t, Body: b}
}

func simpleF() *bytecode.Body {
	return body(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Local(op.Iload, 0),
		bytecode.Plain(op.Iconst1),
		bytecode.Plain(op.Iadd),
		bytecode.Plain(op.Ireturn),
	)
}

func inlineInto(t *testing.T, host *bytecode.Body, target *inline.Resolved, opts inline.Options) (*bytecode.Body, *inline.Inliner) {
	t.Helper()
	in, err := inline.NewInliner(host, target, opts)
	require.NoError(t, err)
	out, err := visit.Rewrite(host, in)
	require.NoError(t, err)
	return out, in
}

func instructions(b *bytecode.Body) []bytecode.Instruction {
	out := make([]bytecode.Instruction, b.InstructionCount())
	for i := range out {
		out[i] = b.InstructionAt(i)
	}
	return out
}

func TestInlineAtPositionFive(t *testing.T) {
	host := body(bytecode.Signature{Name: "m", Descriptor: "()V", Static: true}, 3, nil,
		bytecode.Plain(op.Iconst0),
		bytecode.Local(op.Istore, 0),
		bytecode.Plain(op.Iconst0),
		bytecode.Local(op.Istore, 1),
		bytecode.Local(op.Iload, 0),
		callF(),
		bytecode.Local(op.Istore, 2),
		bytecode.Plain(op.Return),
	)
	var sites []inline.Site
	out, in := inlineInto(t, host, resolved(targetF, simpleF()), inline.Options{
		OnSplice: func(s inline.Site) { sites = append(sites, s) },
	})
	require.Equal(t, inline.Merged, in.State())
	merge := in.Context().Merge

	got := instructions(out)
	require.Equal(t, instructions(host)[:5], got[:5])
	require.Equal(t, []bytecode.Instruction{
		bytecode.Local(op.Istore, 3),
		bytecode.Local(op.Iload, 3),
		bytecode.Plain(op.Iconst1),
		bytecode.Plain(op.Iadd),
		bytecode.Jump(op.Goto, merge),
		bytecode.Mark(merge),
	}, got[5:11])
	require.Equal(t, instructions(host)[6:], got[11:])

	require.GreaterOrEqual(t, out.InstructionCount(), host.InstructionCount()+simpleF().InstructionCount()-1)
	require.Equal(t, 4, out.MaxLocals())
	require.Len(t, sites, 1)
	require.Equal(t, inline.Site{Host: "m()V", Target: targetF, FirstSlot: 3, Instructions: 6}, sites[0])
}

func TestEveryReturnJumpsToOneMergeLabel(t *testing.T) {
	target := body(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Line(10),
		bytecode.Local(op.Iload, 0),
		bytecode.Jump(op.Ifeq, 1),
		bytecode.Line(11),
		bytecode.Plain(op.Iconst1),
		bytecode.Plain(op.Ireturn),
		bytecode.Mark(1),
		bytecode.Line(12),
		bytecode.Plain(op.Iconst0),
		bytecode.Plain(op.Ireturn),
	)
	host := body(bytecode.Signature{Name: "m", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Mark(1),
		bytecode.Line(3),
		bytecode.Local(op.Iload, 0),
		callF(),
		bytecode.Plain(op.Ireturn),
	)
	out, in := inlineInto(t, host, resolved(targetF, target), inline.Options{})
	merge := in.Context().Merge

	var gotos, marks, lines, returns int
	for _, ins := range instructions(out) {
		switch {
		case ins.Kind == bytecode.KindJump && ins.Target == merge:
			gotos++
			require.Equal(t, op.Goto, ins.Op)
		case ins.IsMark() && ins.Target == merge:
			marks++
		case ins.Kind == bytecode.KindLine:
			lines++
		case op.IsReturn(ins.Op) && !ins.IsPseudo():
			returns++
		}
	}
	require.Equal(t, 2, gotos)
	require.Equal(t, 1, marks)
	require.Equal(t, 1, lines, "only the host's line marker is kept")
	require.Equal(t, 1, returns, "only the host's return is left")

	// The target's label 1 was renamed so it does not collide with the
	// host's label 1.
	var defined []bytecode.Label
	for _, ins := range instructions(out) {
		if ins.IsMark() {
			defined = append(defined, ins.Target)
		}
	}
	require.Equal(t, []bytecode.Label{1, 3, 2}, defined)
	require.Equal(t, bytecode.Label(2), merge)
}

func TestHostHandlerStillCoversSplice(t *testing.T) {
	target := body(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1,
		[]bytecode.Handler{{Start: 1, End: 2, Handler: 3, Type: "java/lang/ArithmeticException"}},
		bytecode.Mark(1),
		bytecode.Plain(op.Iconst1),
		bytecode.Local(op.Iload, 0),
		bytecode.Plain(op.Idiv),
		bytecode.Mark(2),
		bytecode.Plain(op.Ireturn),
		bytecode.Mark(3),
		bytecode.Plain(op.Pop),
		bytecode.Plain(op.Iconst0),
		bytecode.Plain(op.Ireturn),
	)
	host := body(bytecode.Signature{Name: "m", Descriptor: "(I)V", Static: true}, 1,
		[]bytecode.Handler{{Start: 1, End: 2, Handler: 3, Type: "java/lang/Exception"}},
		bytecode.Mark(1),
		bytecode.Local(op.Iload, 0),
		callF(),
		bytecode.Plain(op.Pop),
		bytecode.Mark(2),
		bytecode.Plain(op.Return),
		bytecode.Mark(3),
		bytecode.Plain(op.Athrow),
	)
	out, in := inlineInto(t, host, resolved(targetF, target), inline.Options{})
	ctx := in.Context()

	require.Equal(t, 2, out.HandlerCount())
	require.Equal(t, bytecode.Handler{
		Start:   ctx.Labels[1],
		End:     ctx.Labels[2],
		Handler: ctx.Labels[3],
		Type:    "java/lang/ArithmeticException",
	}, out.HandlerAt(0), "target handlers are matched first")
	require.Equal(t, host.HandlerAt(0), out.HandlerAt(1))

	pos := map[bytecode.Label]int{}
	for i, ins := range instructions(out) {
		if ins.IsMark() {
			pos[ins.Target] = i
		}
	}
	hostRange := out.HandlerAt(1)
	require.Less(t, pos[hostRange.Start], pos[ctx.Labels[1]])
	require.Greater(t, pos[hostRange.End], pos[ctx.Merge])
	// Store of the argument, then the target starts.
	require.Equal(t, bytecode.Local(op.Istore, 1), out.InstructionAt(pos[hostRange.Start]+2))
	require.Equal(t, 2, out.MaxLocals())
}

func TestPrologueOrderAndReceiver(t *testing.T) {
	target := inline.Target{Owner: "demo/Acc", Name: "add", Descriptor: "(JI)V"}
	targetBody := body(bytecode.Signature{Name: "add", Descriptor: "(JI)V"}, 4, nil,
		bytecode.Local(op.Aload, 0),
		bytecode.Local(op.Lload, 1),
		bytecode.Local(op.Iload, 3),
		bytecode.Plain(op.Pop),
		bytecode.Plain(op.Pop2),
		bytecode.Plain(op.Pop),
		bytecode.Plain(op.Return),
	)
	call := bytecode.Ref(op.Invokevirtual, bytecode.MethodRef(target.Owner, target.Name, target.Descriptor))
	host := body(bytecode.Signature{Name: "m", Descriptor: "(Ldemo/Acc;)V"}, 2, nil,
		bytecode.Local(op.Aload, 1),
		bytecode.Plain(op.Lconst1),
		bytecode.Plain(op.Iconst2),
		call,
		bytecode.Plain(op.Return),
	)

	out, _ := inlineInto(t, host, resolved(target, targetBody), inline.Options{Mode: inline.Preserve})
	require.Equal(t, []bytecode.Instruction{
		bytecode.Local(op.Istore, 5),
		bytecode.Local(op.Lstore, 3),
		bytecode.Local(op.Astore, 2),
		bytecode.Local(op.Aload, 2),
		bytecode.Local(op.Lload, 3),
		bytecode.Local(op.Iload, 5),
	}, instructions(out)[3:9])

	out, _ = inlineInto(t, host, resolved(target, targetBody), inline.Options{Mode: inline.SameInstance})
	require.Equal(t, []bytecode.Instruction{
		bytecode.Local(op.Istore, 4),
		bytecode.Local(op.Lstore, 2),
		bytecode.Plain(op.Pop),
		bytecode.Local(op.Aload, 0),
		bytecode.Local(op.Lload, 2),
		bytecode.Local(op.Iload, 4),
	}, instructions(out)[3:9])
}

func TestOnlyFirstCallIsInlined(t *testing.T) {
	recursive := body(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Local(op.Iload, 0),
		callF(),
		bytecode.Plain(op.Ireturn),
	)
	host := body(bytecode.Signature{Name: "m", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Local(op.Iload, 0),
		callF(),
		callF(),
		bytecode.Plain(op.Ireturn),
	)
	out, _ := inlineInto(t, host, resolved(targetF, recursive), inline.Options{})
	var calls int
	for _, ins := range instructions(out) {
		if targetF.Matches(ins, nil) {
			calls++
		}
	}
	require.Equal(t, 2, calls, "the recursive call and the second host call remain")
}

func TestUntouchedWithoutCall(t *testing.T) {
	host := body(bytecode.Signature{Name: "m", Descriptor: "()V", Static: true}, 0, nil,
		bytecode.Plain(op.Return),
	)
	out, in := inlineInto(t, host, resolved(targetF, simpleF()), inline.Options{})
	require.Equal(t, inline.Scanning, in.State())
	require.Nil(t, in.Context())
	require.Equal(t, host.Params(), out.Params())
}

func TestInlineErrors(t *testing.T) {
	instance := inline.Target{Owner: "demo/Target", Name: "g", Descriptor: "()V"}
	instanceBody := body(bytecode.Signature{Name: "g", Descriptor: "()V"}, 1, nil, bytecode.Plain(op.Return))
	staticHost := body(bytecode.Signature{Name: "m", Descriptor: "(Ldemo/Target;)V", Static: true}, 1, nil,
		bytecode.Local(op.Aload, 0),
		bytecode.Ref(op.Invokevirtual, bytecode.MethodRef("demo/Target", "g", "()V")),
		bytecode.Plain(op.Return),
	)
	in, err := inline.NewInliner(staticHost, resolved(instance, instanceBody), inline.Options{})
	require.NoError(t, err)
	_, err = visit.Rewrite(staticHost, in)
	require.True(t, errz.Is(err, errz.IncompatibleReceiver))

	wrongOp := body(bytecode.Signature{Name: "m", Descriptor: "(I)V", Static: true}, 1, nil,
		bytecode.Local(op.Iload, 0),
		bytecode.Ref(op.Invokevirtual, bytecode.MethodRef(targetF.Owner, targetF.Name, targetF.Descriptor)),
		bytecode.Plain(op.Return),
	)
	in, err = inline.NewInliner(wrongOp, resolved(targetF, simpleF()), inline.Options{})
	require.NoError(t, err)
	_, err = visit.Rewrite(wrongOp, in)
	require.True(t, errz.Is(err, errz.IncompatibleReceiver))

	pinned := body(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1, nil,
		bytecode.Ref(op.Invokedynamic, bytecode.Symbol{Tag: cpool.InvokeDynamic, Name: "x", Desc: "()V", Index: 9}),
		bytecode.Local(op.Iload, 0),
		bytecode.Plain(op.Ireturn),
	)
	host := body(bytecode.Signature{Name: "m", Descriptor: "(I)V", Static: true}, 1, nil,
		bytecode.Local(op.Iload, 0),
		callF(),
		bytecode.Plain(op.Return),
	)
	in, err = inline.NewInliner(host, resolved(targetF, pinned), inline.Options{CrossClass: true})
	require.NoError(t, err)
	_, err = visit.Rewrite(host, in)
	require.True(t, errz.Is(err, errz.NonInlinableTarget))

	in, err = inline.NewInliner(host, resolved(targetF, pinned), inline.Options{})
	require.NoError(t, err)
	_, err = visit.Rewrite(host, in)
	require.NoError(t, err)
}

func TestTargetMatches(t *testing.T) {
	target := inline.Target{Owner: "demo/Host", Name: "f", Descriptor: "(I)I"}
	remap := func(s string) string {
		if s == "demo/Impl" {
			return "demo/Host"
		}
		return s
	}
	tests := []struct {
		name string
		ins  bytecode.Instruction
		want bool
	}{
		{"exact", bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Host", "f", "(I)I")), true},
		{"remapped owner", bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Impl", "f", "(I)I")), true},
		{"other owner", bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Other", "f", "(I)I")), false},
		{"other name", bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Host", "g", "(I)I")), false},
		{"other descriptor", bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Host", "f", "(J)I")), false},
		{"field", bytecode.Ref(op.Getstatic, bytecode.FieldRef("demo/Host", "f", "(I)I")), false},
		{"plain", bytecode.Plain(op.Iadd), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, target.Matches(tt.ins, remap))
		})
	}
	require.Equal(t, "demo/Host.f(I)I", target.String())
}

func TestParseTarget(t *testing.T) {
	got, err := inline.ParseTarget("demo/pkg/Util.f(ILjava/lang/String;)V")
	require.NoError(t, err)
	require.Equal(t, inline.Target{Owner: "demo/pkg/Util", Name: "f", Descriptor: "(ILjava/lang/String;)V"}, got)
	require.Equal(t, "f(ILjava/lang/String;)V", got.Key())

	for _, bad := range []string{"demo/Util.f", ".f()V", "demo/Util.()V", "f()V"} {
		_, err := inline.ParseTarget(bad)
		require.True(t, errz.Is(err, errz.TargetNotFound), bad)
	}
	_, err = inline.ParseTarget("demo/Util.f(Q)V")
	require.True(t, errz.Is(err, errz.MalformedReference))
}
