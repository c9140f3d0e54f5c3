package errz

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := At(TruncatedInput, 42, "need %d bytes", 4)
	require.Equal(t, "truncated input: need 4 bytes (offset 42)", err.Error())

	err = New(TargetNotFound, "Foo.bar()V")
	require.Equal(t, "target not found: Foo.bar()V", err.Error())

	cause := fmt.Errorf("boom")
	err = Newf(MalformedCode, "method %s", "run").WithCause(cause)
	require.Equal(t, "malformed code: method run: boom", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		category Category
		code     ErrorCode
	}{
		{TruncatedInput, Structural, CW101},
		{UnsupportedVersion, Structural, CW102},
		{MalformedConstant, Structural, CW103},
		{MalformedPool, Structural, CW104},
		{MalformedReference, Structural, CW105},
		{MalformedCode, Structural, CW106},
		{TargetNotFound, Transformation, CW201},
		{NonInlinableTarget, Transformation, CW202},
		{IncompatibleReceiver, Transformation, CW203},
		{OffsetOverflow, EncodingLimit, CW301},
		{PoolOverflow, EncodingLimit, CW302},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "x")
			require.Equal(t, tt.category, err.Category())
			require.Equal(t, tt.code, err.Code())
			require.True(t, err.IsFatal())
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("stage inline: %w", New(IncompatibleReceiver, "static host"))
	require.True(t, Is(err, IncompatibleReceiver))
	require.False(t, Is(err, TargetNotFound))
	require.False(t, Is(fmt.Errorf("plain"), TargetNotFound))

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, IncompatibleReceiver, kind)
}

func TestSuggestSimilar(t *testing.T) {
	candidates := []string{"run(I)I", "f(I)I", "g(I)I", "main([Ljava/lang/String;)V"}
	got := SuggestSimilar("f(J)J", candidates)
	require.Equal(t, []Suggestion{{"f(I)I", 2}}, got)
	require.Equal(t, "did you mean f(I)I?", FormatSuggestions(got))

	got = SuggestSimilar("h(I)I", candidates)
	require.Equal(t, []Suggestion{{"f(I)I", 1}, {"g(I)I", 1}}, got)
	require.Equal(t, "did you mean one of f(I)I, g(I)I?", FormatSuggestions(got))

	require.Empty(t, SuggestSimilar("f(I)I", []string{"f(I)I"}))
	require.Empty(t, SuggestSimilar("", candidates))
	require.Equal(t, "", FormatSuggestions(nil))
}

func TestLevenshtein(t *testing.T) {
	require.Equal(t, 0, levenshtein("abc", "abc"))
	require.Equal(t, 3, levenshtein("", "abc"))
	require.Equal(t, 3, levenshtein("kitten", "sitting"))
	require.Equal(t, 1, levenshtein("ab", "b"))
}
