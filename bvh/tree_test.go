package bvh

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/jobs"
	"github.com/stretchr/testify/require"
)

func newTestTree(opts ...Option) *Tree[int, string] {
	opts = append([]Option{WithValidation(true)}, opts...)
	return New[int, string]("test", opts...)
}

func keys(results []Result[int, string]) []int {
	k := make([]int, 0, len(results))
	for _, r := range results {
		k = append(k, r.Key)
	}
	sort.Ints(k)
	return k
}

func TestTreeQueryReturnsCoveredObjects(t *testing.T) {
	tree := newTestTree()

	_, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "first")
	require.NoError(t, err)
	_, err = tree.RequestInsert(2, geom.Box(10, 10, 0, 11, 11, 1), "second")
	require.NoError(t, err)
	tree.Update()

	results := tree.Query(geom.BoxFrustum(geom.Box(-1, -1, -1, 2, 2, 2))).Wait()
	require.Equal(t, []Result[int, string]{{Key: 1, Payload: "first"}}, results)

	results = tree.Query(geom.BoxFrustum(geom.Box(50, 50, 50, 60, 60, 60))).Wait()
	require.Empty(t, results)

	results = tree.Query(geom.Everything).Wait()
	require.Equal(t, []int{1, 2}, keys(results))
}

func TestTreeRemoveMiddleObject(t *testing.T) {
	tree := newTestTree()

	var handles []Handle
	for i := 0; i < 3; i++ {
		h, err := tree.RequestInsert(i, geom.Box(float64(i*3), 0, 0, float64(i*3+1), 1, 1), "")
		require.NoError(t, err)
		handles = append(handles, h)
	}
	tree.Update()
	require.Equal(t, 3, tree.Len())

	err := tree.RequestRemove(handles[1])
	require.NoError(t, err)
	tree.Update()

	require.Equal(t, 2, tree.Len())
	require.Equal(t, []int{0, 2}, keys(tree.Query(geom.Everything).Wait()))
	require.NoError(t, tree.Validate())
}

func TestTreeAddThenRemoveBeforeUpdate(t *testing.T) {
	tree := newTestTree()

	s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
	require.NoError(t, err)

	err = tree.RequestRemove(s)
	require.NoError(t, err)

	tree.Update()
	require.Zero(t, tree.Len())
	require.Equal(t, None, tree.Root())
	require.Empty(t, tree.Query(geom.Everything).Wait())

	stats := tree.Stats()
	require.Equal(t, stats.Capacity, stats.Free)

	err = tree.RequestRemove(s)
	require.Error(t, err)
	require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))
}

func TestTreeRoundTrip(t *testing.T) {
	tree := newTestTree()

	others := make([]Handle, 0, 4)
	for i := 0; i < 4; i++ {
		s, err := tree.RequestInsert(10+i, geom.Box(float64(i), 5, 5, float64(i)+0.5, 6, 6), "")
		require.NoError(t, err)
		others = append(others, s)
	}

	a, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "a")
	require.NoError(t, err)
	tree.Update()

	require.NoError(t, tree.RequestRemove(a))
	for _, s := range others {
		require.NoError(t, tree.RequestRemove(s))
	}
	tree.Update()

	require.Equal(t, None, tree.Root())
	require.Zero(t, tree.Len())

	stats := tree.Stats()
	require.Equal(t, stats.Capacity, stats.Free)
}

func TestTreeRequestInsertInvalidBounds(t *testing.T) {
	tree := newTestTree()

	_, err := tree.RequestInsert(1, geom.Box(1, 0, 0, 0, 1, 1), "")
	require.Error(t, err)
	require.Equal(t, ErrTypeInvalidBounds, errors.Type(err))
}

func TestTreeRequestRemove(t *testing.T) {
	t.Run("unknown slot", func(t *testing.T) {
		tree := newTestTree()

		err := tree.RequestRemove(Handle{Slot: 42})
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))

		err = tree.RequestRemove(Handle{Slot: 1 << 20})
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))
	})

	t.Run("removed twice", func(t *testing.T) {
		tree := newTestTree()

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		tree.Update()

		require.NoError(t, tree.RequestRemove(s))
		err = tree.RequestRemove(s)
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))

		tree.Update()
		err = tree.RequestRemove(s)
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))
	})

	t.Run("internal node", func(t *testing.T) {
		tree := newTestTree()

		_, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		_, err = tree.RequestInsert(2, geom.Box(2, 2, 2, 3, 3, 3), "")
		require.NoError(t, err)
		tree.Update()

		err = tree.RequestRemove(Handle{Slot: tree.Root()})
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))
	})
}

func TestTreeReusedSlot(t *testing.T) {
	newReusedSlot := func(t *testing.T) (*Tree[int, string], Handle, Handle) {
		tree := newTestTree()

		stale, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "a")
		require.NoError(t, err)
		tree.Update()

		require.NoError(t, tree.RequestRemove(stale))
		tree.Update()

		current, err := tree.RequestInsert(2, geom.Box(5, 5, 5, 6, 6, 6), "b")
		require.NoError(t, err)
		tree.Update()

		require.Equal(t, stale.Slot, current.Slot)
		require.NotEqual(t, stale.Version, current.Version)
		return tree, stale, current
	}

	t.Run("removing with a stale handle returns an error", func(t *testing.T) {
		tree, stale, current := newReusedSlot(t)

		err := tree.RequestRemove(stale)
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))

		tree.Update()
		require.Equal(t, 1, tree.Len())
		require.Equal(t, []int{2}, keys(tree.Query(geom.Everything).Wait()))

		h, ok := tree.Handle(current.Slot)
		require.True(t, ok)
		require.Equal(t, current, h)
	})

	t.Run("marking a stale handle dirty returns an error", func(t *testing.T) {
		tree, stale, current := newReusedSlot(t)

		err := tree.MarkDirty(stale, geom.Box(50, 50, 50, 51, 51, 51))
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))

		tree.Update()
		n, ok := tree.Node(current.Slot)
		require.True(t, ok)
		require.Equal(t, geom.Box(5, 5, 5, 6, 6, 6), n.Bounds)
	})

	t.Run("canceled insert invalidates its handle", func(t *testing.T) {
		tree := newTestTree()

		stale, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		require.NoError(t, tree.RequestRemove(stale))
		tree.Update()

		current, err := tree.RequestInsert(2, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		require.Equal(t, stale.Slot, current.Slot)

		require.Error(t, tree.RequestRemove(stale))
		require.NoError(t, tree.RequestRemove(current))
	})

	t.Run("free slot has no handle", func(t *testing.T) {
		tree := newTestTree()

		_, ok := tree.Handle(3)
		require.False(t, ok)
		_, ok = tree.Handle(None)
		require.False(t, ok)
	})
}

func TestTreeMarkDirty(t *testing.T) {
	t.Run("linked object", func(t *testing.T) {
		tree := newTestTree()

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		_, err = tree.RequestInsert(2, geom.Box(5, 5, 5, 6, 6, 6), "")
		require.NoError(t, err)
		tree.Update()

		moved := geom.Box(100, 100, 100, 101, 101, 101)
		require.NoError(t, tree.MarkDirty(s, moved))
		tree.Update()

		n, ok := tree.Node(s.Slot)
		require.True(t, ok)
		require.Equal(t, moved, n.Bounds)
		require.Equal(t, 1, n.Key)

		require.Empty(t, tree.Query(geom.BoxFrustum(geom.Box(-1, -1, -1, 2, 2, 2))).Wait())
		require.Equal(t, []int{1}, keys(tree.Query(geom.BoxFrustum(moved)).Wait()))
		require.Equal(t, 2, tree.Len())
	})

	t.Run("pending insert", func(t *testing.T) {
		tree := newTestTree()

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)

		moved := geom.Box(3, 3, 3, 4, 4, 4)
		require.NoError(t, tree.MarkDirty(s, moved))
		tree.Update()

		n, ok := tree.Node(s.Slot)
		require.True(t, ok)
		require.Equal(t, moved, n.Bounds)
	})

	t.Run("pending remove", func(t *testing.T) {
		tree := newTestTree()

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		tree.Update()

		require.NoError(t, tree.RequestRemove(s))
		require.NoError(t, tree.MarkDirty(s, geom.Box(3, 3, 3, 4, 4, 4)))
		tree.Update()

		require.Zero(t, tree.Len())
		_, ok := tree.Node(s.Slot)
		require.False(t, ok)
	})

	t.Run("unknown slot", func(t *testing.T) {
		tree := newTestTree()

		err := tree.MarkDirty(Handle{Slot: 7}, geom.Box(0, 0, 0, 1, 1, 1))
		require.Error(t, err)
		require.Equal(t, ErrTypeSlotNotFound, errors.Type(err))
	})

	t.Run("invalid bounds", func(t *testing.T) {
		tree := newTestTree()

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)

		err = tree.MarkDirty(s, geom.Box(0, 2, 0, 1, 1, 1))
		require.Error(t, err)
		require.Equal(t, ErrTypeInvalidBounds, errors.Type(err))
	})

	t.Run("static tree", func(t *testing.T) {
		tree := newTestTree(WithStatic(true))

		s, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
		require.NoError(t, err)
		tree.Update()

		err = tree.MarkDirty(s, geom.Box(3, 3, 3, 4, 4, 4))
		require.Error(t, err)
		require.Equal(t, ErrTypeStaticTree, errors.Type(err))
	})
}

func TestTreeStats(t *testing.T) {
	tree := newTestTree(WithInitialCapacity(8))
	require.Equal(t, Stats{Capacity: 8, Free: 8}, tree.Stats())

	_, err := tree.RequestInsert(1, geom.Box(0, 0, 0, 1, 1, 1), "")
	require.NoError(t, err)
	_, err = tree.RequestInsert(2, geom.Box(10, 10, 10, 11, 11, 11), "")
	require.NoError(t, err)
	tree.Update()

	require.Equal(t, Stats{
		Leaves:   2,
		Internal: 1,
		Depth:    2,
		Capacity: 8,
		Free:     5,
	}, tree.Stats())
}

func TestTreeGeneration(t *testing.T) {
	tree := newTestTree()
	require.Zero(t, tree.Generation())

	q := tree.Query(geom.Everything)
	require.True(t, q.Done())
	require.Zero(t, q.Generation())
	require.Empty(t, q.Wait())

	tree.Update()
	tree.Update()
	require.Equal(t, uint64(2), tree.Generation())
	require.Equal(t, uint64(2), tree.Query(geom.Everything).Generation())
}

func TestTreeRandomOperations(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{
			name: "default",
		},
		{
			name: "rebalance",
			opts: []Option{WithRebalance(true)},
		},
		{
			name: "small arena",
			opts: []Option{WithInitialCapacity(2), WithRebalance(true)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			tree := newTestTree(test.opts...)

			bounds := make(map[int]geom.AABB)
			slots := make(map[int]Handle)
			nextKey := 0

			randomBox := func() geom.AABB {
				center := geom.Vec(rng.Float64()*100, rng.Float64()*100, rng.Float64()*100)
				extents := geom.Vec(rng.Float64()*3+0.1, rng.Float64()*3+0.1, rng.Float64()*3+0.1)
				return geom.NewAABB(center, extents)
			}

			for round := 0; round < 50; round++ {
				for i := 0; i < rng.Intn(20); i++ {
					b := randomBox()
					s, err := tree.RequestInsert(nextKey, b, "")
					require.NoError(t, err)
					bounds[nextKey] = b
					slots[nextKey] = s
					nextKey++
				}

				for k, s := range slots {
					switch rng.Intn(6) {
					case 0:
						require.NoError(t, tree.RequestRemove(s))
						delete(slots, k)
						delete(bounds, k)
					case 1:
						b := randomBox()
						require.NoError(t, tree.MarkDirty(s, b))
						bounds[k] = b
					}
				}

				tree.Update()
				require.NoError(t, tree.Validate())
				require.Equal(t, len(slots), tree.Len())

				frustum := geom.Box(20, 20, 20, 60, 60, 60)
				var expected []int
				for k, b := range bounds {
					if frustum.Intersects(b) {
						expected = append(expected, k)
					}
				}
				sort.Ints(expected)

				results := keys(tree.Query(geom.BoxFrustum(frustum)).Wait())
				if len(expected) == 0 {
					require.Empty(t, results)
				} else {
					require.Equal(t, expected, results)
				}
			}
		})
	}
}

func TestTreeQueryWithPool(t *testing.T) {
	pool := jobs.NewPool(4, 0)
	defer pool.Close()

	tree := newTestTree(WithScheduler(pool))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			for z := 0; z < 10; z++ {
				key := x*100 + y*10 + z
				b := geom.Box(float64(x), float64(y), float64(z), float64(x)+0.5, float64(y)+0.5, float64(z)+0.5)
				_, err := tree.RequestInsert(key, b, "")
				require.NoError(t, err)
			}
		}
	}
	tree.Update()
	require.Equal(t, 1000, tree.Len())

	results := tree.Query(geom.BoxFrustum(geom.Box(-0.1, -0.1, -0.1, 1.9, 0.9, 0.9))).Wait()
	require.Equal(t, []int{0, 100}, keys(results))

	results = tree.Query(geom.Everything).Wait()
	require.Len(t, results, 1000)
}

func TestTreeConcurrentRequests(t *testing.T) {
	tree := newTestTree()

	var wg sync.WaitGroup
	slots := make([][]Handle, 8)

	for i := range slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				b := geom.Box(float64(i), float64(j), 0, float64(i)+0.5, float64(j)+0.5, 1)
				s, err := tree.RequestInsert(i*50+j, b, "")
				require.NoError(t, err)
				slots[i] = append(slots[i], s)
			}
		}(i)
	}
	wg.Wait()
	tree.Update()
	require.Equal(t, 400, tree.Len())

	for i := range slots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			for _, s := range slots[i] {
				require.NoError(t, tree.RequestRemove(s))
			}
		}(i)
	}
	wg.Wait()
	tree.Update()
	require.Zero(t, tree.Len())
}

func TestTreeQueriesDuringUpdates(t *testing.T) {
	pool := jobs.NewPool(4, 0)
	defer pool.Close()

	tree := newTestTree(WithScheduler(pool), WithRebalance(true))
	for i := 0; i < 200; i++ {
		_, err := tree.RequestInsert(i, geom.Box(float64(i), 0, 0, float64(i)+0.5, 1, 1), "")
		require.NoError(t, err)
	}
	tree.Update()

	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for {
				select {
				case <-done:
					return
				default:
				}

				results := keys(tree.Query(geom.Everything).Wait())
				for j := 1; j < len(results); j++ {
					require.NotEqual(t, results[j-1], results[j])
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(7))
	slots := make(map[int]Handle)
	for i := 0; i < 100; i++ {
		key := 1000 + i
		s, err := tree.RequestInsert(key, geom.Box(rng.Float64()*200, 0, 0, rng.Float64()*200+201, 1, 1), "")
		require.NoError(t, err)
		slots[key] = s

		if i%3 == 0 {
			for k, s := range slots {
				require.NoError(t, tree.RequestRemove(s))
				delete(slots, k)
				break
			}
		}
		tree.Update()
	}

	close(done)
	wg.Wait()
	require.Equal(t, 200+len(slots), tree.Len())
	require.NoError(t, tree.Validate())
}

func TestTreeWalk(t *testing.T) {
	tree := newTestTree()

	var visited int
	tree.Walk(func(Node[int, string]) bool {
		visited++
		return true
	})
	require.Zero(t, visited)

	for i := 0; i < 5; i++ {
		_, err := tree.RequestInsert(i, geom.Box(float64(i), 0, 0, float64(i)+1, 1, 1), "")
		require.NoError(t, err)
	}
	tree.Update()

	var leaves []int
	tree.Walk(func(n Node[int, string]) bool {
		visited++
		if n.IsLeaf() {
			leaves = append(leaves, n.Key)
		}
		return true
	})
	sort.Ints(leaves)
	require.Equal(t, 9, visited)
	require.Equal(t, []int{0, 1, 2, 3, 4}, leaves)

	visited = 0
	tree.Walk(func(Node[int, string]) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited)
}
