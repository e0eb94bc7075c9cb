package reflist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrder(t *testing.T) {
	l := FromSlice([]int{1, 2, 3})
	r0, ok := l.Get(0)
	require.True(t, ok)
	idx, ok := r0.Order()
	require.True(t, ok)
	require.Equal(t, 0, idx)

	r2, ok := l.Get(2)
	require.True(t, ok)
	idx, ok = r2.Order()
	require.True(t, ok)
	require.Equal(t, 2, idx)
}

func TestDelete(t *testing.T) {
	l := FromSlice([]int{10, 20, 30, 40, 50})
	refs := l.Refs()

	l.Delete([]int{1, 3})

	require.Equal(t, 3, l.Len())

	idx, ok := refs[0].Order()
	require.True(t, ok)
	require.Equal(t, 0, idx)

	_, ok = refs[1].Order()
	require.False(t, ok, "deleted entry must report detached")

	idx, ok = refs[2].Order()
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = refs[3].Order()
	require.False(t, ok)

	idx, ok = refs[4].Order()
	require.True(t, ok)
	require.Equal(t, 2, idx)

	require.Equal(t, []int{10, 30, 50}, l.Values())
}

func TestDeleteUnsortedInput(t *testing.T) {
	l := FromSlice([]int{0, 1, 2, 3, 4})
	refs := l.Refs()
	l.Delete([]int{3, 0, 1})
	require.Equal(t, []int{2, 4}, l.Values())

	idx, ok := refs[2].Order()
	require.True(t, ok)
	require.Equal(t, 0, idx)
	idx, ok = refs[4].Order()
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestSharedMutation(t *testing.T) {
	l := New[string]()
	r := l.Push("a")
	r2, _ := l.Get(0)
	r2.Set("b")
	require.Equal(t, "b", r.Get())
}
