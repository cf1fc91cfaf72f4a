package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/occlusion/geom"
)

// Viewer is a scene observer looking through a frustum.
type Viewer struct {
	ID uint32

	mutex   sync.Mutex
	frustum geom.Frustum
	visible map[uint32]struct{}
}

// NewViewer creates a viewer that sees nothing until its frustum is set.
func NewViewer(id uint32) *Viewer {
	return &Viewer{
		ID:      id,
		frustum: geom.Nothing,
		visible: make(map[uint32]struct{}),
	}
}

func (v *Viewer) SetFrustum(f geom.Frustum) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.frustum = f
}

func (v *Viewer) Frustum() geom.Frustum {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return v.frustum
}

// Diff records the entities currently visible and returns the ones that
// entered and exited the view since the previous call. Both are sorted.
func (v *Viewer) Diff(visible []uint32) (entered, exited []uint32) {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	current := make(map[uint32]struct{}, len(visible))
	for _, id := range visible {
		current[id] = struct{}{}
		if _, ok := v.visible[id]; !ok {
			entered = append(entered, id)
		}
	}

	for id := range v.visible {
		if _, ok := current[id]; !ok {
			exited = append(exited, id)
		}
	}

	v.visible = current
	sortIDs(entered)
	sortIDs(exited)
	return entered, exited
}

// VisibleCount returns the number of entities seen at the last Diff.
func (v *Viewer) VisibleCount() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	return len(v.visible)
}

func sortIDs(ids []uint32) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
}
