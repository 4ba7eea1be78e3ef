package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortCircuit_Text(t *testing.T) {
	conds := []string{"a", "b", "c"}

	assert.Equal(t, "truthy(a)", ShortCircuit(conds, 0))
	assert.Equal(t, "truthy(b) && !truthy(a)", ShortCircuit(conds, 1))
	assert.Equal(t, "truthy(c) && !truthy(a) && !truthy(b)", ShortCircuit(conds, 2))
	assert.Equal(t, "!truthy(a) && !truthy(b) && !truthy(c)", ShortCircuit(conds, 3))
	assert.Equal(t, "true", ShortCircuit(nil, 0))
}

// Only the first matching branch in document order may be entered, even when
// later raw conditions are also true.
func TestShortCircuit_Exclusivity(t *testing.T) {
	conds := []string{"x > 1", "x > 2", "true"}

	cases := []struct {
		x    int
		want int
	}{
		{x: 5, want: 0},
		{x: 0, want: 2},
	}

	for _, tc := range cases {
		env := map[string]any{"x": tc.x}
		var entered []int
		for i := 0; i <= len(conds); i++ {
			ok, err := Eval(ShortCircuit(conds, i), env)
			require.NoError(t, err)
			if ok {
				entered = append(entered, i)
			}
		}
		assert.Equal(t, []int{tc.want}, entered, "x=%d", tc.x)
	}
}

func TestShortCircuit_NonBooleanConditions(t *testing.T) {
	ok, err := Eval(ShortCircuit([]string{"name", "count"}, 1), map[string]any{"name": "", "count": 3})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnd_SkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "a && b", And("a", " ", "b"))
	assert.Equal(t, "true", And())
	assert.Equal(t, "!truthy(x > 1)", Not(" x > 1 "))
}
