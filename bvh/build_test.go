package bvh

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/geom"
	"github.com/stretchr/testify/require"
)

func TestTreeBuild(t *testing.T) {
	tree := newTestTree(WithStatic(true))

	var items []Item[int, string]
	for i := 0; i < 100; i++ {
		items = append(items, Item[int, string]{
			Key:     i,
			Bounds:  geom.Box(float64(i%10)*2, float64(i/10)*2, 0, float64(i%10)*2+1, float64(i/10)*2+1, 1),
			Payload: "static",
		})
	}

	handles, err := tree.Build(items)
	require.NoError(t, err)
	require.Len(t, handles, 100)
	require.Equal(t, 100, tree.Len())
	require.Equal(t, uint64(1), tree.Generation())
	require.NoError(t, tree.Validate())

	for i, h := range handles {
		n, ok := tree.Node(h.Slot)
		require.True(t, ok)
		require.Equal(t, i, n.Key)
	}

	stats := tree.Stats()
	require.Equal(t, 100, stats.Leaves)
	require.Equal(t, 99, stats.Internal)
	require.LessOrEqual(t, stats.Depth, 8)

	results := tree.Query(geom.BoxFrustum(geom.Box(-0.5, -0.5, -0.5, 3.5, 1.5, 0.5))).Wait()
	require.Equal(t, []int{0, 1}, keys(results))

	require.NoError(t, tree.RequestRemove(handles[0]))
	tree.Update()
	require.Equal(t, 99, tree.Len())
}

func TestTreeBuildErrors(t *testing.T) {
	t.Run("not empty", func(t *testing.T) {
		tree := newTestTree()

		_, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)

		_, err = tree.Build([]Item[int, string]{{Key: 2, Bounds: geom.Box(0, 0, 0, 1, 1, 1)}})
		require.Error(t, err)
		require.Equal(t, ErrTypeTreeNotEmpty, errors.Type(err))

		tree.Update()
		_, err = tree.Build([]Item[int, string]{{Key: 2, Bounds: geom.Box(0, 0, 0, 1, 1, 1)}})
		require.Error(t, err)
		require.Equal(t, ErrTypeTreeNotEmpty, errors.Type(err))
	})

	t.Run("invalid bounds", func(t *testing.T) {
		tree := newTestTree()

		_, err := tree.Build([]Item[int, string]{{Key: 2, Bounds: geom.Box(0, 0, 0, -1, 1, 1)}})
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidBounds, errors.Type(err))
		require.Zero(t, tree.Len())
	})

	t.Run("no items", func(t *testing.T) {
		tree := newTestTree()

		slots, err := tree.Build(nil)
		require.NoError(t, err)
		require.Empty(t, slots)
		require.Equal(t, None, tree.Root())
	})
}

func TestTreeBuildLogsInvalidTree(t *testing.T) {
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	tree := newTestTree(WithStatic(true))
	tree.arena.versions = append(tree.arena.versions, 0)

	require.Panics(t, func() {
		tree.Build([]Item[int, string]{
			{Key: 1, Bounds: geom.Box(0, 0, 0, 1, 1, 1)},
			{Key: 2, Bounds: geom.Box(2, 0, 0, 3, 1, 1)},
		})
	})
	require.Contains(t, b.String(), `"tree":"test"`)
}
