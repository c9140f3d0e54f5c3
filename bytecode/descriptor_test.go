package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/op"
)

func TestParseMethodType(t *testing.T) {
	mt, err := ParseMethodType("(IJ[Ljava/lang/String;D)V")
	require.NoError(t, err)
	require.Equal(t, []Type{"I", "J", "[Ljava/lang/String;", "D"}, mt.Params)
	require.Equal(t, Type("V"), mt.Return)
	require.Equal(t, 6, mt.ArgSlots())
	require.Equal(t, "(IJ[Ljava/lang/String;D)V", mt.String())

	mt, err = ParseMethodType("()[[J")
	require.NoError(t, err)
	require.Empty(t, mt.Params)
	require.Equal(t, Type("[[J"), mt.Return)
}

func TestParseMethodTypeInvalid(t *testing.T) {
	for _, desc := range []string{"", "()", "(I", "I)V", "(Q)V", "(L;)V", "(I)VV", "(V)V", "(Ljava/lang/Object)V"} {
		_, err := ParseMethodType(desc)
		require.True(t, errz.Is(err, errz.MalformedReference), desc)
	}
}

func TestParseFieldType(t *testing.T) {
	typ, err := ParseFieldType("[Ljava/util/List;")
	require.NoError(t, err)
	require.True(t, typ.IsReference())
	_, err = ParseFieldType("II")
	require.Error(t, err)
}

func TestTypeOpcodes(t *testing.T) {
	tests := []struct {
		typ   Type
		size  int
		load  op.Code
		store op.Code
		ret   op.Code
	}{
		{"I", 1, op.Iload, op.Istore, op.Ireturn},
		{"Z", 1, op.Iload, op.Istore, op.Ireturn},
		{"J", 2, op.Lload, op.Lstore, op.Lreturn},
		{"F", 1, op.Fload, op.Fstore, op.Freturn},
		{"D", 2, op.Dload, op.Dstore, op.Dreturn},
		{"Ljava/lang/Object;", 1, op.Aload, op.Astore, op.Areturn},
		{"[I", 1, op.Aload, op.Astore, op.Areturn},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			require.Equal(t, tt.size, tt.typ.Size())
			require.Equal(t, tt.load, tt.typ.LoadOp())
			require.Equal(t, tt.store, tt.typ.StoreOp())
			require.Equal(t, tt.ret, tt.typ.ReturnOp())
		})
	}
	require.Equal(t, 0, Type("V").Size())
	require.Equal(t, op.Return, Type("V").ReturnOp())
}

func TestMapDescriptor(t *testing.T) {
	rename := func(name string) string {
		if name == "a/Old" {
			return "b/New"
		}
		return name
	}
	require.Equal(t, "(Lb/New;[Lb/New;I)La/Other;", MapDescriptor("(La/Old;[La/Old;I)La/Other;", rename))
	require.Equal(t, "(IJ)V", MapDescriptor("(IJ)V", rename))
	require.Equal(t, "[[Lb/New;", MapClassName("[[La/Old;", rename))
	require.Equal(t, "b/New", MapClassName("a/Old", rename))
}

func TestSymbolMapClasses(t *testing.T) {
	rename := func(name string) string {
		if name == "Host" {
			return "Target"
		}
		return name
	}
	sym := MethodRef("Host", "f", "(LHost;)LHost;").MapClasses(rename)
	require.Equal(t, MethodRef("Target", "f", "(LTarget;)LTarget;"), sym)
	require.Equal(t, ClassRef("Target"), ClassRef("Host").MapClasses(rename))
	require.Equal(t, StringConst("Host"), StringConst("Host").MapClasses(rename))
}
