package inline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/errz"
)

func TestBuildMapping(t *testing.T) {
	sig := bytecode.Signature{Name: "f", Descriptor: "(JIDLjava/lang/String;)V"}

	tests := []struct {
		name     string
		mode     Mode
		receiver int
		params   []int
		limit    int
	}{
		{"preserve", Preserve, 5, []int{6, 8, 9, 11}, 15},
		{"same instance", SameInstance, 0, []int{5, 7, 8, 10}, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := BuildMapping(sig, 10, 5, tt.mode, false)
			require.NoError(t, err)
			require.Equal(t, tt.receiver, m.Receiver)
			require.Equal(t, tt.params, m.Params)
			require.Equal(t, []bytecode.Type{"J", "I", "D", "Ljava/lang/String;"}, m.Types)
			require.Equal(t, 10, m.Len())
			require.Equal(t, tt.limit, m.Limit())

			seen := map[int]int{}
			for old := 0; old < m.Len(); old++ {
				n := m.Map(old)
				prev, dup := seen[n]
				require.False(t, dup, "slots %d and %d both map to %d", prev, old, n)
				seen[n] = old
				if old > 0 && !(old == 1 && m.Shared()) {
					require.Equal(t, m.Map(old-1)+1, n)
				}
			}
		})
	}
}

func TestBuildMappingStatic(t *testing.T) {
	m, err := BuildMapping(bytecode.Signature{Name: "f", Descriptor: "(I)I", Static: true}, 1, 3, SameInstance, true)
	require.NoError(t, err)
	require.Equal(t, -1, m.Receiver)
	require.Equal(t, []int{3}, m.Params)
	require.False(t, m.Shared())
	require.Equal(t, 4, m.Limit())
}

func TestBuildMappingErrors(t *testing.T) {
	_, err := BuildMapping(bytecode.Signature{Name: "f", Descriptor: "()V"}, 1, 0, Preserve, true)
	require.True(t, errz.Is(err, errz.IncompatibleReceiver))

	_, err = BuildMapping(bytecode.Signature{Name: "f", Descriptor: "(I", Static: true}, 1, 0, Preserve, false)
	require.True(t, errz.Is(err, errz.MalformedReference))
}
