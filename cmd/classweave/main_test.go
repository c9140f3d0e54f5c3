package main

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave"
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/inline"
	"github.com/deepnoodle-ai/classweave/internal/classtest"
	"github.com/deepnoodle-ai/classweave/op"
)

func utilClass(t *testing.T) []byte {
	return classtest.New("demo/Util").
		Method(classfile.AccStatic, "f", "(I)I",
			bytecode.Local(op.Iload, 0),
			bytecode.Plain(op.Iconst1),
			bytecode.Plain(op.Iadd),
			bytecode.Plain(op.Ireturn),
		).
		Build(t)
}

func appClass(t *testing.T) []byte {
	return classtest.New("demo/App").
		Field(classfile.AccPublic, "count", "I").
		Method(classfile.AccStatic, "run", "(I)I",
			bytecode.Line(3),
			bytecode.Local(op.Iload, 0),
			bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Util", "f", "(I)I")),
			bytecode.Ref(op.Invokestatic, bytecode.MethodRef("demo/Util", "f", "(I)I")),
			bytecode.Plain(op.Ireturn),
		).
		Build(t)
}

func TestParsePairs(t *testing.T) {
	m, err := parsePairs([]string{"a/B=c/D", "x=y"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a/B": "c/D", "x": "y"}, m)

	m, err = parsePairs(nil)
	require.NoError(t, err)
	require.Nil(t, m)

	for _, bad := range []string{"a/B", "=c", "a="} {
		_, err := parsePairs([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want inline.Mode
	}{
		{"", inline.Preserve},
		{"preserve", inline.Preserve},
		{"Same-Instance", inline.SameInstance},
		{"same", inline.SameInstance},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseMode("sideways")
	require.Error(t, err)
}

func TestBuildRequest(t *testing.T) {
	v := viper.New()
	_, err := buildRequest(v)
	require.ErrorContains(t, err, "nothing to do")

	v.Set("inline", []string{"demo/Util.f(I)I"})
	v.Set("host", []string{"run"})
	v.Set("mode", "same-instance")
	v.Set("remap", []string{"demo/Util=demo/App"})
	v.Set("rename", []string{"demo/Old=demo/New"})
	v.Set("merge", "demo/Patch")
	req, err := buildRequest(v)
	require.NoError(t, err)
	require.Len(t, req.Inline, 1)
	require.Equal(t, inline.Target{Owner: "demo/Util", Name: "f", Descriptor: "(I)I"}, req.Inline[0].Target)
	require.Equal(t, []string{"run"}, req.Inline[0].Hosts)
	require.Equal(t, inline.SameInstance, req.Inline[0].Mode)
	require.Equal(t, map[string]string{"demo/Util": "demo/App"}, req.Inline[0].Remap)
	require.Equal(t, "demo/Patch", req.Merge.Class)
	require.Len(t, req.Passes, 1)

	v.Set("inline", []string{"not a target"})
	_, err = buildRequest(v)
	require.True(t, errz.Is(err, errz.TargetNotFound), "got %v", err)
}

func TestCheckClass(t *testing.T) {
	res, err := checkClass(appClass(t))
	require.NoError(t, err)
	require.Empty(t, res.Skipped)
	_, err = checkClass(utilClass(t))
	require.NoError(t, err)

	_, err = checkClass([]byte{0xCA, 0xFE})
	require.Error(t, err)

	data := classtest.New("demo/New").Version(61, 0).Build(t)
	_, err = checkClass(data, classfile.WithMaxVersion(classfile.Version{Major: 52}))
	require.True(t, errz.Is(err, errz.UnsupportedVersion), "got %v", err)
}

func TestCheckClassWithUnknownAttribute(t *testing.T) {
	data := classtest.New("demo/Ok").
		Method(classfile.AccStatic, "f", "()V", bytecode.Plain(op.Return)).
		Attribute("ScalaSig", []byte{5, 0, 0}).
		Build(t)
	res, err := checkClass(data)
	require.NoError(t, err)
	require.Contains(t, res.Skipped, "ScalaSig")
}

func TestInspectClass(t *testing.T) {
	info, err := inspectClass(appClass(t))
	require.NoError(t, err)
	require.Equal(t, "demo/App", info.Name)
	require.Equal(t, "java/lang/Object", info.Super)
	require.Equal(t, "52.0", info.Version)
	require.Equal(t, []string{"count I"}, info.Fields)
	require.Len(t, info.Methods, 1)

	run := info.Methods[0]
	require.Equal(t, "run", run.Name)
	require.Equal(t, "(I)I", run.Descriptor)
	require.True(t, run.Static)
	require.Equal(t, 1, run.MaxLocals)
	require.Equal(t, 4, run.Instructions)
	require.Equal(t, 0, run.Branches)
	require.Greater(t, run.CodeLength, 0)

	var out bytes.Buffer
	printClassInfo(&out, info)
	require.Contains(t, out.String(), "demo/App")
	require.Contains(t, out.String(), "method run(I)I")
}

func TestInspectClassWithUnknownAttribute(t *testing.T) {
	data := classtest.New("demo/Ok").
		Interface("java/lang/Runnable").
		Field(classfile.AccPublic, "count", "I").
		Method(classfile.AccStatic, "run", "(I)I",
			bytecode.Local(op.Iload, 0),
			bytecode.Plain(op.Ireturn),
		).
		Attribute("ScalaSig", []byte{5, 0, 0}).
		Build(t)
	info, err := inspectClass(data)
	require.NoError(t, err)
	require.Equal(t, "demo/Ok", info.Name)
	require.Equal(t, "java/lang/Object", info.Super)
	require.Equal(t, "52.0", info.Version)
	require.Equal(t, []string{"java/lang/Runnable"}, info.Interfaces)
	require.Equal(t, []string{"count I"}, info.Fields)
	require.Equal(t, []methodInfo{{
		Name:         "run",
		Descriptor:   "(I)I",
		Static:       true,
		MaxStack:     1,
		MaxLocals:    1,
		CodeLength:   2,
		Instructions: 2,
	}}, info.Methods)
}

func buildJar(t *testing.T, entries map[string][]byte, order []string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestWeaveJar(t *testing.T) {
	manifest := []byte("Manifest-Version: 1.0\n")
	order := []string{"META-INF/MANIFEST.MF", "demo/App.class", "demo/Util.class"}
	jar := buildJar(t, map[string][]byte{
		"META-INF/MANIFEST.MF": manifest,
		"demo/App.class":       appClass(t),
		"demo/Util.class":      utilClass(t),
	}, order)

	zr, err := zip.NewReader(bytes.NewReader(jar), int64(len(jar)))
	require.NoError(t, err)
	source, err := classweave.NewZipSource(bytes.NewReader(jar), int64(len(jar)))
	require.NoError(t, err)

	req := classweave.Request{Inline: []classweave.InlineRequest{{
		Target: inline.Target{Owner: "demo/Util", Name: "f", Descriptor: "(I)I"},
	}}}
	var out bytes.Buffer
	stats, err := weaveJar(zr, &out, req, []classweave.Option{classweave.WithClassSource(source)}, 2)
	require.NoError(t, err)
	require.Equal(t, jarStats{Classes: 2, Changed: 1, Sites: 1}, stats)

	result, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	require.Len(t, result.File, 3)
	contents := map[string][]byte{}
	for i, f := range result.File {
		require.Equal(t, order[i], f.Name)
		data, err := readEntry(f)
		require.NoError(t, err)
		contents[f.Name] = data
	}
	require.Equal(t, manifest, contents["META-INF/MANIFEST.MF"])
	require.Equal(t, utilClass(t), contents["demo/Util.class"])
	_, err = checkClass(contents["demo/App.class"])
	require.NoError(t, err)

	c, err := classfile.Parse(contents["demo/App.class"])
	require.NoError(t, err)
	body, err := c.Body(c.FindMethod("run", "(I)I"))
	require.NoError(t, err)
	var invokes int
	for i := 0; i < body.InstructionCount(); i++ {
		if body.InstructionAt(i).Op == op.Invokestatic {
			invokes++
		}
	}
	require.Equal(t, 1, invokes)
}

func TestWeaveJarReportsClassErrors(t *testing.T) {
	jar := buildJar(t, map[string][]byte{
		"demo/App.class": appClass(t),
	}, []string{"demo/App.class"})
	zr, err := zip.NewReader(bytes.NewReader(jar), int64(len(jar)))
	require.NoError(t, err)

	req := classweave.Request{Inline: []classweave.InlineRequest{{
		Target: inline.Target{Owner: "demo/Util", Name: "f", Descriptor: "(I)I"},
	}}}
	var out bytes.Buffer
	_, err = weaveJar(zr, &out, req, nil, 1)
	require.ErrorContains(t, err, "demo/App.class")
	require.True(t, errz.Is(err, errz.TargetNotFound), "got %v", err)
}
