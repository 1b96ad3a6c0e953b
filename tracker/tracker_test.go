package tracker

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain runs the tracker to completion, finishing nodes in the order they are
// handed out, and returns that order.
func drain(t *testing.T, tr *Tracker[string], fail map[string]bool) []string {
	t.Helper()
	var order []string
	for tr.IsActive() {
		ready, err := tr.GetReady()
		require.NoError(t, err)
		require.NotEmpty(t, ready, "active tracker with nothing ready and nothing in flight")
		for _, n := range ready {
			order = append(order, n)
			if fail[n] {
				require.NoError(t, tr.Fail(n))
			} else {
				require.NoError(t, tr.Done(n))
			}
		}
	}
	return order
}

func diamond(t *testing.T) *Tracker[string] {
	t.Helper()
	tr := New[string]()
	require.NoError(t, tr.Add("a"))
	require.NoError(t, tr.Add("b", "a"))
	require.NoError(t, tr.Add("c", "a"))
	require.NoError(t, tr.Add("d", "b", "c"))
	return tr
}

func TestTracker_Diamond(t *testing.T) {
	tr := diamond(t)
	require.NoError(t, tr.Prepare())

	ready, err := tr.GetReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ready)

	// a is handed out, nothing else is ready until it is done
	ready, err = tr.GetReady()
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.True(t, tr.IsActive())

	require.NoError(t, tr.Done("a"))
	ready, err = tr.GetReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ready)

	require.NoError(t, tr.Done("b"))
	ready, err = tr.GetReady()
	require.NoError(t, err)
	assert.Empty(t, ready, "d still waits for c")

	require.NoError(t, tr.Done("c"))
	ready, err = tr.GetReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, ready)

	require.NoError(t, tr.Done("d"))
	assert.False(t, tr.IsActive())
}

func TestTracker_ImplicitParents(t *testing.T) {
	tr := New[string]()
	require.NoError(t, tr.Add("child", "parent"))
	assert.Equal(t, 2, tr.Len())

	require.NoError(t, tr.Prepare())
	assert.Equal(t, []string{"parent", "child"}, drain(t, tr, nil))
}

func TestTracker_AddMergesEdges(t *testing.T) {
	tr := New[string]()
	require.NoError(t, tr.Add("b", "a"))
	require.NoError(t, tr.Add("b", "a", "c"))
	require.NoError(t, tr.Prepare())

	ready, err := tr.GetReady()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ready)
	require.NoError(t, tr.Done("a"))

	ready, err = tr.GetReady()
	require.NoError(t, err)
	assert.Empty(t, ready, "b must wait for c as well")
}

func TestTracker_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		edges map[string][]string
	}{
		{name: "self loop", edges: map[string][]string{"a": {"a"}}},
		{name: "two nodes", edges: map[string][]string{"a": {"b"}, "b": {"a"}}},
		{name: "three nodes", edges: map[string][]string{"a": {"c"}, "b": {"a"}, "c": {"b"}, "root": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New[string]()
			for n, parents := range tt.edges {
				require.NoError(t, tr.Add(n, parents...))
			}

			err := tr.Prepare()
			require.Error(t, err)

			var cycleErr *CycleError
			require.True(t, errors.As(err, &cycleErr))
			require.GreaterOrEqual(t, len(cycleErr.Nodes), 2)
			assert.Equal(t, cycleErr.Nodes[0], cycleErr.Nodes[len(cycleErr.Nodes)-1])
			assert.NotContains(t, cycleErr.Nodes, "root")
			assert.Contains(t, err.Error(), "dependency cycle detected")
		})
	}
}

func TestTracker_CycleLabel(t *testing.T) {
	tr := New(WithLabel(func(k int) string { return map[int]string{1: "one", 2: "two"}[k] }))
	require.NoError(t, tr.Add(1, 2))
	require.NoError(t, tr.Add(2, 1))

	err := tr.Prepare()
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"one", "two", "one"}, cycleErr.Nodes)
}

func TestTracker_Fail(t *testing.T) {
	tr := diamond(t)
	require.NoError(t, tr.Add("e", "b"))
	require.NoError(t, tr.Prepare())

	order := drain(t, tr, map[string]bool{"c": true})

	assert.NotContains(t, order, "d")
	assert.Contains(t, order, "e", "e does not descend from c")
	assert.Equal(t, []string{"d"}, tr.Blocked())
	assert.False(t, tr.IsActive())
}

func TestTracker_FailRoot(t *testing.T) {
	tr := diamond(t)
	require.NoError(t, tr.Prepare())

	order := drain(t, tr, map[string]bool{"a": true})
	assert.Equal(t, []string{"a"}, order)
	assert.Equal(t, []string{"b", "c", "d"}, tr.Blocked())
}

func TestTracker_Errors(t *testing.T) {
	t.Run("GetReadyBeforePrepare", func(t *testing.T) {
		tr := diamond(t)
		_, err := tr.GetReady()
		assert.ErrorIs(t, err, ErrNotPrepared)
		assert.False(t, tr.IsActive())
	})

	t.Run("PrepareTwice", func(t *testing.T) {
		tr := diamond(t)
		require.NoError(t, tr.Prepare())
		assert.ErrorIs(t, tr.Prepare(), ErrAlreadyPrepared)
	})

	t.Run("AddAfterPrepare", func(t *testing.T) {
		tr := diamond(t)
		require.NoError(t, tr.Prepare())
		assert.ErrorIs(t, tr.Add("z"), ErrAlreadyPrepared)
	})

	t.Run("DoneUnknown", func(t *testing.T) {
		tr := diamond(t)
		require.NoError(t, tr.Prepare())
		assert.ErrorIs(t, tr.Done("zz"), ErrUnknownNode)
	})

	t.Run("DoneNotHandedOut", func(t *testing.T) {
		tr := diamond(t)
		require.NoError(t, tr.Prepare())
		assert.ErrorIs(t, tr.Done("b"), ErrNotReady)
	})

	t.Run("DoneTwice", func(t *testing.T) {
		tr := diamond(t)
		require.NoError(t, tr.Prepare())
		_, err := tr.GetReady()
		require.NoError(t, err)
		require.NoError(t, tr.Done("a"))
		assert.ErrorIs(t, tr.Done("a"), ErrNotReady)
	})
}

func TestTracker_RandomizedOrder(t *testing.T) {
	edges := map[string][]string{
		"a": nil,
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
		"e": {"d"},
		"f": {"a", "e"},
		"g": nil,
		"h": {"g", "c"},
	}
	names := make([]string, 0, len(edges))
	for n := range edges {
		names = append(names, n)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		rng.Shuffle(len(names), func(a, b int) { names[a], names[b] = names[b], names[a] })

		tr := New[string]()
		for _, n := range names {
			require.NoError(t, tr.Add(n, edges[n]...))
		}
		require.NoError(t, tr.Prepare())

		order := drain(t, tr, nil)
		require.Len(t, order, len(edges))

		pos := make(map[string]int, len(order))
		for idx, n := range order {
			pos[n] = idx
		}
		for n, parents := range edges {
			for _, p := range parents {
				assert.Less(t, pos[p], pos[n], "%s must come after %s", n, p)
			}
		}
	}
}

func TestTracker_Empty(t *testing.T) {
	tr := New[string]()
	require.NoError(t, tr.Prepare())
	assert.False(t, tr.IsActive())
	ready, err := tr.GetReady()
	require.NoError(t, err)
	assert.Empty(t, ready)
}
