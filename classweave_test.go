package classweave_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave"
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/frames"
	"github.com/deepnoodle-ai/classweave/inline"
	"github.com/deepnoodle-ai/classweave/internal/classtest"
	"github.com/deepnoodle-ai/classweave/op"
	"github.com/deepnoodle-ai/classweave/visit"
)

var utilF = inline.Target{Owner: "demo/Util", Name: "f", Descriptor: "(I)I"}

func utilBytes(t *testing.T) []byte {
	return classtest.New("demo/Util").
		Method(classfile.AccStatic, "f", "(I)I",
			bytecode.Local(op.Iload, 0),
			bytecode.Plain(op.Iconst1),
			bytecode.Plain(op.Iadd),
			bytecode.Plain(op.Ireturn),
		).
		Method(classfile.AccStatic|classfile.AccNative, "n", "(I)I").
		Build(t)
}

func appBytes(t *testing.T) []byte {
	return classtest.New("demo/App").
		Method(classfile.AccStatic, "run", "(I)I",
			bytecode.Line(12),
			bytecode.Local(op.Iload, 0),
			bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Util", "f", "(I)I")),
			bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Util", "n", "(I)I")),
			bytecode.Plain(op.Ireturn),
		).
		SourceFile("App.java").
		Build(t)
}

func methodBody(t *testing.T, data []byte, name, desc string) *bytecode.Body {
	t.Helper()
	c, err := classfile.Parse(data)
	require.NoError(t, err)
	m := c.FindMethod(name, desc)
	require.NotNil(t, m)
	b, err := c.Body(m)
	require.NoError(t, err)
	return b
}

func TestTransformWithoutChangesIsIdentity(t *testing.T) {
	in := appBytes(t)
	out, err := classweave.Transform(in, classweave.Request{})
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestTransformInline(t *testing.T) {
	var logs bytes.Buffer
	var report classweave.Report
	out, err := classweave.Transform(appBytes(t),
		classweave.Request{Inline: []classweave.InlineRequest{{Target: utilF}}},
		classweave.WithClassSource(classweave.MapSource{"demo/Util": utilBytes(t)}),
		classweave.WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)),
		classweave.WithReport(&report),
	)
	require.NoError(t, err)

	body := methodBody(t, out, "run", "(I)I")
	var ops []op.Code
	for i := 0; i < body.InstructionCount(); i++ {
		if ins := body.InstructionAt(i); !ins.IsPseudo() {
			ops = append(ops, ins.Op)
		}
	}
	require.Equal(t, []op.Code{
		op.Iload, op.Istore, op.Iload, op.Iconst1, op.Iadd, op.Goto,
		op.Invokestatic, op.Ireturn,
	}, ops)
	require.Equal(t, bytecode.Line(12), body.InstructionAt(0))

	require.Equal(t, "demo/App", report.Class)
	require.NotEmpty(t, report.InvocationID)
	require.Equal(t, []string{"inline demo/Util.f(I)I"}, report.Stages)
	require.Len(t, report.Sites, 1)
	require.Equal(t, 1, report.Sites[0].FirstSlot)

	require.Contains(t, logs.String(), report.InvocationID)
	require.Contains(t, logs.String(), `"message":"inlined call"`)
	require.Contains(t, logs.String(), `"message":"wrote class"`)
}

func TestTransformFrameComputer(t *testing.T) {
	var called int
	computer := frames.ComputerFunc(func(b *bytecode.Body) (frames.Result, error) {
		called++
		return frames.Default().Compute(b)
	})
	_, err := classweave.Transform(appBytes(t),
		classweave.Request{Inline: []classweave.InlineRequest{{Target: utilF, Hosts: []string{"run"}}}},
		classweave.WithClassSource(classweave.MapSource{"demo/Util": utilBytes(t)}),
		classweave.WithFrameComputer(computer),
	)
	require.NoError(t, err)
	require.Equal(t, 1, called)
}

func TestTransformErrors(t *testing.T) {
	source := classweave.WithClassSource(classweave.MapSource{"demo/Util": utilBytes(t)})
	tests := []struct {
		name string
		data []byte
		req  classweave.Request
		opts []classweave.Option
		kind errz.ErrorKind
	}{
		{
			name: "no class source",
			data: appBytes(t),
			req:  classweave.Request{Inline: []classweave.InlineRequest{{Target: utilF}}},
			kind: errz.TargetNotFound,
		},
		{
			name: "class missing from source",
			data: appBytes(t),
			req: classweave.Request{Inline: []classweave.InlineRequest{{
				Target: inline.Target{Owner: "demo/Gone", Name: "f", Descriptor: "(I)I"},
			}}},
			opts: []classweave.Option{source},
			kind: errz.TargetNotFound,
		},
		{
			name: "native target",
			data: appBytes(t),
			req: classweave.Request{Inline: []classweave.InlineRequest{{
				Target: inline.Target{Owner: "demo/Util", Name: "n", Descriptor: "(I)I"},
			}}},
			opts: []classweave.Option{source},
			kind: errz.NonInlinableTarget,
		},
		{
			name: "not a class",
			data: []byte("PK\x03\x04"),
			kind: errz.MalformedConstant,
		},
		{
			name: "too new",
			data: appBytes(t),
			opts: []classweave.Option{classweave.WithMaxVersion(classfile.Version{Major: 50})},
			kind: errz.UnsupportedVersion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := classweave.Transform(tt.data, tt.req, tt.opts...)
			require.Nil(t, out)
			require.True(t, errz.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestTransformMergeAndPasses(t *testing.T) {
	host := classtest.New("demo/Host").
		Method(classfile.AccPublic, "value", "()I",
			bytecode.Plain(op.Iconst5),
			bytecode.Plain(op.Ireturn),
		).
		Method(classfile.AccPublic, "name", "()Ljava/lang/Object;",
			bytecode.Ref(op.New, bytecode.ClassRef("demo/OldThing")),
			bytecode.Plain(op.Areturn),
		).
		Build(t)
	patch := classtest.New("demo/Patch").
		Method(classfile.AccPublic, "value", "()I",
			bytecode.Local(op.Aload, 0),
			bytecode.Ref(op.Invokevirtual, bytecode.MethodRef("demo/Patch", "value", "()I")),
			bytecode.Plain(op.Ineg),
			bytecode.Plain(op.Ireturn),
		).
		Build(t)

	var report classweave.Report
	out, err := classweave.Transform(host, classweave.Request{
		Merge:  &classweave.MergeRequest{Class: "demo/Patch"},
		Passes: []visit.ClassVisitor{visit.NewRemapper(map[string]string{"demo/OldThing": "demo/NewThing"})},
	},
		classweave.WithClassSource(classweave.ChainSource{
			classweave.MapSource{},
			classweave.MapSource{"demo/Patch": patch},
		}),
		classweave.WithReport(&report),
	)
	require.NoError(t, err)
	require.Equal(t, []string{"merge demo/Patch", "remap"}, report.Stages)
	require.Len(t, report.Sites, 1)

	value := methodBody(t, out, "value", "()I")
	require.Equal(t, 7, value.InstructionCount())
	require.Equal(t, op.Ineg, value.InstructionAt(5).Op)

	name := methodBody(t, out, "name", "()Ljava/lang/Object;")
	require.Equal(t, bytecode.ClassRef("demo/NewThing"), name.InstructionAt(0).Sym)
}
