package models

import (
	"sync"

	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/golang/geo/r3"
)

// Entity is a scene object with bounds.
type Entity struct {
	ID       uint32
	Name     string
	Category occlusion.Category

	mutex  sync.RWMutex
	bounds geom.AABB

	watcherIDs SequentialIDGenerator
	watchers   map[uint32]func(*Entity)
}

func NewEntity(id uint32, name string, c occlusion.Category, bounds geom.AABB) *Entity {
	return &Entity{
		ID:       id,
		Name:     name,
		Category: c,
		bounds:   bounds,
	}
}

func (e *Entity) Bounds() geom.AABB {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.bounds
}

// SetBounds sets the entity bounds and notifies the watchers.
func (e *Entity) SetBounds(b geom.AABB) {
	e.mutex.Lock()
	e.bounds = b
	watchers := make([]func(*Entity), 0, len(e.watchers))
	for _, w := range e.watchers {
		watchers = append(watchers, w)
	}
	e.mutex.Unlock()

	for _, w := range watchers {
		w(e)
	}
}

// Move translates the entity bounds and notifies the watchers.
func (e *Entity) Move(v r3.Vector) {
	e.SetBounds(e.Bounds().Translate(v))
}

// Watch registers a function called after each bounds change.
func (e *Entity) Watch(h func(*Entity)) (cancel func()) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.watchers == nil {
		e.watchers = make(map[uint32]func(*Entity))
	}

	id := e.watcherIDs.New()
	e.watchers[id] = h

	return func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()

		if _, ok := e.watchers[id]; !ok {
			return
		}
		delete(e.watchers, id)
		e.watcherIDs.Reuse(id)
	}
}
