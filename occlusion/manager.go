// Package occlusion indexes scene objects by category for visibility queries.
//
// A Manager owns one bounding tree per category and maps object keys to the
// identities handed out by the trees. Objects added, moved or removed become
// visible to queries after the next call to Update.
package occlusion

import (
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/bvh"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/jobs"
)

// ID identifies an object within a manager. An ID stops matching once its
// object is removed, even when the slot is reused by another object.
type ID struct {
	Index    bvh.Slot
	Version  uint32
	Category Category
}

func newID(h bvh.Handle, c Category) ID {
	return ID{
		Index:    h.Slot,
		Version:  h.Version,
		Category: c,
	}
}

func (id ID) handle() bvh.Handle {
	return bvh.Handle{Slot: id.Index, Version: id.Version}
}

// Option configures a manager.
type Option func(*options)

type options struct {
	name        string
	scheduler   jobs.Scheduler
	treeOptions []bvh.Option
}

// WithName sets the name used as the tree name prefix in logs and metrics.
// Defaults to "occlusion".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithScheduler sets the scheduler that runs the query branches of every
// tree.
func WithScheduler(s jobs.Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithTreeOptions sets options applied to every tree.
func WithTreeOptions(opts ...bvh.Option) Option {
	return func(o *options) {
		o.treeOptions = append(o.treeOptions, opts...)
	}
}

// Manager is a set of category trees.
type Manager[K comparable, P any] struct {
	name  string
	trees [CategoryCount]*bvh.Tree[K, P]

	mutex sync.RWMutex
	ids   map[K]ID
	keys  [CategoryCount]map[bvh.Slot]K
}

func NewManager[K comparable, P any](opts ...Option) *Manager[K, P] {
	o := options{
		name:      "occlusion",
		scheduler: jobs.Inline{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager[K, P]{
		name: o.name,
		ids:  make(map[K]ID),
	}

	for _, c := range Categories {
		treeOptions := make([]bvh.Option, 0, len(o.treeOptions)+2)
		treeOptions = append(treeOptions, bvh.WithScheduler(o.scheduler))
		treeOptions = append(treeOptions, o.treeOptions...)
		treeOptions = append(treeOptions, bvh.WithStatic(c == Static))

		m.trees[c] = bvh.New[K, P](o.name+"_"+c.String(), treeOptions...)
		m.keys[c] = make(map[bvh.Slot]K)
	}

	logs.WithTag("manager", o.name).
		WithTag("categories", int(CategoryCount)).
		Info("occlusion manager created")
	return m
}

func (m *Manager[K, P]) Name() string {
	return m.name
}

// AddObject buffers the insertion of an object in the given category.
func (m *Manager[K, P]) AddObject(c Category, key K, bounds geom.AABB, payload P) (ID, error) {
	if !c.IsValid() {
		return ID{}, unknownCategory(c)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if id, ok := m.ids[key]; ok {
		return ID{}, errors.New("object already added").
			WithType(ErrTypeObjectAlreadyAdded).
			WithTag("manager", m.name).
			WithTag("category", id.Category.String()).
			WithTag("slot", id.Index)
	}

	h, err := m.trees[c].RequestInsert(key, bounds, payload)
	if err != nil {
		return ID{}, errors.New("adding object failed").
			WithType(errors.Type(err)).
			WithTag("manager", m.name).
			WithTag("category", c.String()).
			Wrap(err)
	}

	id := newID(h, c)
	m.ids[key] = id
	m.keys[c][h.Slot] = key
	return id, nil
}

// RemoveObject buffers the removal of the object with the given identity.
func (m *Manager[K, P]) RemoveObject(id ID) error {
	if !id.Category.IsValid() {
		return unknownCategory(id.Category)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	key, ok := m.keys[id.Category][id.Index]
	if !ok || m.ids[key] != id {
		return m.notFound(id)
	}
	return m.remove(key, id)
}

// RemoveObjectByKey buffers the removal of the object with the given key.
func (m *Manager[K, P]) RemoveObjectByKey(key K) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	id, ok := m.ids[key]
	if !ok {
		return errors.New("object not found").
			WithType(ErrTypeObjectNotFound).
			WithTag("manager", m.name)
	}
	return m.remove(key, id)
}

func (m *Manager[K, P]) remove(key K, id ID) error {
	if err := m.trees[id.Category].RequestRemove(id.handle()); err != nil {
		return errors.New("removing object failed").
			WithType(ErrTypeObjectNotFound).
			WithTag("manager", m.name).
			WithTag("category", id.Category.String()).
			WithTag("slot", id.Index).
			Wrap(err)
	}

	delete(m.ids, key)
	delete(m.keys[id.Category], id.Index)
	return nil
}

// UpdateObject records new bounds for a moving object. The object is relaid
// out during the next Update. Static objects cannot move.
func (m *Manager[K, P]) UpdateObject(key K, bounds geom.AABB) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	id, ok := m.ids[key]
	if !ok {
		return errors.New("object not found").
			WithType(ErrTypeObjectNotFound).
			WithTag("manager", m.name)
	}

	if id.Category == Static {
		return errors.New("static objects cannot move").
			WithType(ErrTypeStaticObject).
			WithTag("manager", m.name).
			WithTag("slot", id.Index)
	}

	if err := m.trees[id.Category].MarkDirty(id.handle(), bounds); err != nil {
		return errors.New("updating object failed").
			WithType(errors.Type(err)).
			WithTag("manager", m.name).
			WithTag("category", id.Category.String()).
			WithTag("slot", id.Index).
			Wrap(err)
	}
	return nil
}

// ConstructStaticTree builds the static tree from the given objects in one
// step. It returns the object identities in item order. The static category
// must be empty.
func (m *Manager[K, P]) ConstructStaticTree(items []bvh.Item[K, P]) ([]ID, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	seen := make(map[K]struct{}, len(items))
	for i, item := range items {
		_, added := m.ids[item.Key]
		_, duplicated := seen[item.Key]
		if added || duplicated {
			return nil, errors.New("object already added").
				WithType(ErrTypeObjectAlreadyAdded).
				WithTag("manager", m.name).
				WithTag("item", i)
		}
		seen[item.Key] = struct{}{}
	}

	handles, err := m.trees[Static].Build(items)
	if err != nil {
		return nil, errors.New("constructing static tree failed").
			WithType(errors.Type(err)).
			WithTag("manager", m.name).
			Wrap(err)
	}

	ids := make([]ID, len(handles))
	for i, h := range handles {
		id := newID(h, Static)
		ids[i] = id
		m.ids[items[i].Key] = id
		m.keys[Static][h.Slot] = items[i].Key
	}

	instrumentObjects(m.name, Static, len(handles))
	return ids, nil
}

// Lookup returns the identity of the object with the given key.
func (m *Manager[K, P]) Lookup(key K) (ID, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	id, ok := m.ids[key]
	return id, ok
}

// Len returns the number of objects added and not removed, including the
// ones waiting for an update.
func (m *Manager[K, P]) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.ids)
}

// Tree returns the tree of a category.
func (m *Manager[K, P]) Tree(c Category) (*bvh.Tree[K, P], bool) {
	if !c.IsValid() {
		return nil, false
	}
	return m.trees[c], true
}

// Update applies the buffered operations of every category tree.
func (m *Manager[K, P]) Update() {
	start := time.Now()

	for _, c := range Categories {
		tree := m.trees[c]
		tree.Update()
		instrumentObjects(m.name, c, tree.Len())
	}

	instrumentUpdate(m.name, time.Since(start))
}

// QueryData holds the results of a query, per category.
type QueryData[K comparable, P any] struct {
	Results [CategoryCount][]bvh.Result[K, P]
}

// All returns the results of every category.
func (d QueryData[K, P]) All() []bvh.Result[K, P] {
	n := 0
	for _, r := range d.Results {
		n += len(r)
	}

	all := make([]bvh.Result[K, P], 0, n)
	for _, r := range d.Results {
		all = append(all, r...)
	}
	return all
}

// Len returns the number of results of every category.
func (d QueryData[K, P]) Len() int {
	n := 0
	for _, r := range d.Results {
		n += len(r)
	}
	return n
}

// Query returns the objects of every category covered by the frustum. The
// category queries are all dispatched before any of them is joined.
func (m *Manager[K, P]) Query(f geom.Frustum) QueryData[K, P] {
	start := time.Now()

	var queries [CategoryCount]*bvh.PendingQuery[K, P]
	for _, c := range Categories {
		queries[c] = m.trees[c].Query(f)
	}

	var data QueryData[K, P]
	for _, c := range Categories {
		data.Results[c] = queries[c].Wait()
	}

	instrumentQuery(m.name, time.Since(start))
	return data
}

// QueryCategory returns the objects of a single category covered by the
// frustum.
func (m *Manager[K, P]) QueryCategory(f geom.Frustum, c Category) ([]bvh.Result[K, P], error) {
	if !c.IsValid() {
		return nil, unknownCategory(c)
	}

	start := time.Now()
	results := m.trees[c].Query(f).Wait()
	instrumentQuery(m.name, time.Since(start))
	return results, nil
}

func (m *Manager[K, P]) notFound(id ID) error {
	return errors.New("object not found").
		WithType(ErrTypeObjectNotFound).
		WithTag("manager", m.name).
		WithTag("category", id.Category.String()).
		WithTag("slot", id.Index).
		WithTag("version", id.Version)
}

func unknownCategory(c Category) error {
	return errors.New("unknown category").
		WithType(ErrTypeUnknownCategory).
		WithTag("category", int(c))
}
