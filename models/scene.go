package models

import (
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/bvh"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/google/uuid"
)

const ErrTypeNotStatic = "entity_not_static"

// Manager is the occlusion manager used by a scene.
type Manager = occlusion.Manager[uint32, *Entity]

// NewManager creates an occlusion manager for scene entities.
func NewManager(opts ...occlusion.Option) *Manager {
	return occlusion.NewManager[uint32, *Entity](opts...)
}

// Scene represents a set of entities indexed for visibility and the viewers
// looking at them.
//
// The frame loop started with StartDispatchFrames is the only goroutine that
// updates the occlusion trees. Entities may be added, moved and removed from
// any goroutine.
type Scene struct {
	ID        uint32
	SceneUUID string

	manager *Manager

	entityIDs   SequentialIDGenerator
	entityMutex sync.RWMutex
	entities    map[uint32]*Entity
	unwatchers  map[uint32]func()

	viewerIDs   SequentialIDGenerator
	viewerMutex sync.RWMutex
	viewers     map[uint32]*Viewer

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewScene(id uint32, frameDuration time.Duration, manager *Manager) *Scene {
	instrumentCountScene()

	return &Scene{
		ID:             id,
		SceneUUID:      uuid.New().String(),
		manager:        manager,
		entities:       make(map[uint32]*Entity),
		unwatchers:     make(map[uint32]func()),
		viewers:        make(map[uint32]*Viewer),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func()),
	}
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}
	})
}

func (s *Scene) Manager() *Manager {
	return s.manager
}

func (s *Scene) NewEntityID() uint32 {
	return s.entityIDs.New()
}

// AddEntity indexes the entity. Bounds changes of dynamic and light entities
// are forwarded to the occlusion manager until the entity is removed.
func (s *Scene) AddEntity(e *Entity) error {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if _, err := s.manager.AddObject(e.Category, e.ID, e.Bounds(), e); err != nil {
		return errors.New("adding entity failed").
			WithType(errors.Type(err)).
			WithTag("scene", s.SceneUUID).
			WithTag("entity_id", e.ID).
			Wrap(err)
	}

	s.entities[e.ID] = e
	if e.Category != occlusion.Static {
		s.unwatchers[e.ID] = e.Watch(s.onEntityMoved)
	}

	instrumentIncreaseEntityGauge(e.Category)
	return nil
}

// ConstructStatic indexes static entities in a single bulk build. It must be
// called before any static entity is added.
func (s *Scene) ConstructStatic(entities ...*Entity) error {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	items := make([]bvh.Item[uint32, *Entity], len(entities))
	for i, e := range entities {
		if e.Category != occlusion.Static {
			return errors.New("entity is not static").
				WithType(ErrTypeNotStatic).
				WithTag("scene", s.SceneUUID).
				WithTag("entity_id", e.ID).
				WithTag("category", e.Category.String())
		}

		items[i] = bvh.Item[uint32, *Entity]{
			Key:     e.ID,
			Bounds:  e.Bounds(),
			Payload: e,
		}
	}

	if _, err := s.manager.ConstructStaticTree(items); err != nil {
		return errors.New("constructing static entities failed").
			WithType(errors.Type(err)).
			WithTag("scene", s.SceneUUID).
			Wrap(err)
	}

	for _, e := range entities {
		s.entities[e.ID] = e
		instrumentIncreaseEntityGauge(e.Category)
	}
	return nil
}

func (s *Scene) onEntityMoved(e *Entity) {
	if err := s.manager.UpdateObject(e.ID, e.Bounds()); err != nil {
		logs.WithTag("scene", s.SceneUUID).
			WithTag("entity_id", e.ID).
			Warn(err)
	}
}

func (s *Scene) RemoveEntity(e *Entity) error {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if _, ok := s.entities[e.ID]; !ok {
		return errors.New("entity not found").
			WithType(occlusion.ErrTypeObjectNotFound).
			WithTag("scene", s.SceneUUID).
			WithTag("entity_id", e.ID)
	}

	if err := s.manager.RemoveObjectByKey(e.ID); err != nil {
		return errors.New("removing entity failed").
			WithType(errors.Type(err)).
			WithTag("scene", s.SceneUUID).
			WithTag("entity_id", e.ID).
			Wrap(err)
	}

	if unwatch, ok := s.unwatchers[e.ID]; ok {
		unwatch()
		delete(s.unwatchers, e.ID)
	}
	delete(s.entities, e.ID)

	s.entityIDs.Reuse(e.ID)
	instrumentDecreaseEntityGauge(e.Category)
	return nil
}

func (s *Scene) EntityByID(id uint32) (*Entity, bool) {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

func (s *Scene) Entities() []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	return entities
}

func (s *Scene) EntityCount() int {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return len(s.entities)
}

// VisibleEntities returns the entities covered by the frustum as of the last
// frame.
func (s *Scene) VisibleEntities(f geom.Frustum) []*Entity {
	results := s.manager.Query(f).All()

	entities := make([]*Entity, len(results))
	for i, r := range results {
		entities[i] = r.Payload
	}
	return entities
}

// Visible returns the sorted ids of the entities covered by the frustum as of
// the last frame.
func (s *Scene) Visible(f geom.Frustum) []uint32 {
	results := s.manager.Query(f).All()

	ids := make([]uint32, len(results))
	for i, r := range results {
		ids[i] = r.Key
	}
	sortIDs(ids)
	return ids
}

func (s *Scene) NewViewerID() uint32 {
	return s.viewerIDs.New()
}

func (s *Scene) AddViewer(v *Viewer) {
	s.viewerMutex.Lock()
	defer s.viewerMutex.Unlock()

	s.viewers[v.ID] = v
}

func (s *Scene) RemoveViewer(v *Viewer) {
	s.viewerMutex.Lock()
	defer s.viewerMutex.Unlock()

	if _, ok := s.viewers[v.ID]; !ok {
		return
	}
	delete(s.viewers, v.ID)
	s.viewerIDs.Reuse(v.ID)
}

func (s *Scene) Viewers() []*Viewer {
	s.viewerMutex.RLock()
	defer s.viewerMutex.RUnlock()

	viewers := make([]*Viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	return viewers
}

func (s *Scene) ViewerCount() int {
	s.viewerMutex.RLock()
	defer s.viewerMutex.RUnlock()

	return len(s.viewers)
}

// HandleFrame registers a function called at each frame, after the
// occlusion trees are updated.
func (s *Scene) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		if _, ok := s.frameHandlers[id]; !ok {
			return
		}
		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs the frame loop until the scene is closed.
func (s *Scene) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.Frame()
			}
		}
	})
}

// Frame updates the occlusion trees and runs the frame handlers. It must not
// be called concurrently with itself.
func (s *Scene) Frame() {
	start := time.Now()
	s.manager.Update()

	s.frameMutex.RLock()
	for _, h := range s.frameHandlers {
		h()
	}
	s.frameMutex.RUnlock()

	instrumentFrame(time.Since(start))
}
