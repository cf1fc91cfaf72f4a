package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/models"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// simulation populates a scene and keeps its dynamic entities moving inside
// a cubic world centered on the origin.
type simulation struct {
	scene  *models.Scene
	conf   simulationConfig
	rand   *rand.Rand
	movers []mover
}

type mover struct {
	entity   *models.Entity
	velocity r3.Vector
}

func newSimulation(scene *models.Scene, conf simulationConfig) (*simulation, error) {
	s := &simulation{
		scene: scene,
		conf:  conf,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	statics := make([]*models.Entity, conf.StaticEntities)
	for i := range statics {
		statics[i] = s.newEntity(occlusion.Static, 1, 10)
	}
	if len(statics) != 0 {
		if err := scene.ConstructStatic(statics...); err != nil {
			return nil, err
		}
	}

	for _, g := range []struct {
		category occlusion.Category
		count    int
	}{
		{category: occlusion.Dynamic, count: conf.DynamicEntities},
		{category: occlusion.Light, count: conf.Lights},
	} {
		for i := 0; i < g.count; i++ {
			e := s.newEntity(g.category, 0.5, 2)
			if err := scene.AddEntity(e); err != nil {
				return nil, err
			}

			s.movers = append(s.movers, mover{
				entity:   e,
				velocity: s.randomVector(conf.Speed),
			})
		}
	}

	logs.WithTag("scene", scene.SceneUUID).
		WithTag("static_entities", conf.StaticEntities).
		WithTag("dynamic_entities", conf.DynamicEntities).
		WithTag("lights", conf.Lights).
		Info("simulation created")
	return s, nil
}

func (s *simulation) newEntity(c occlusion.Category, minSize, maxSize float64) *models.Entity {
	half := s.conf.WorldSize / 2
	center := s.randomVector(half)

	size := minSize + s.rand.Float64()*(maxSize-minSize)
	bounds := geom.NewAABB(center, geom.Vec(size/2, size/2, size/2))

	name := c.String() + "-" + uuid.NewString()[:8]
	return models.NewEntity(s.scene.NewEntityID(), name, c, bounds)
}

func (s *simulation) randomVector(limit float64) r3.Vector {
	return geom.Vec(
		(s.rand.Float64()*2-1)*limit,
		(s.rand.Float64()*2-1)*limit,
		(s.rand.Float64()*2-1)*limit,
	)
}

// Run moves the dynamic entities at each tick until the context is canceled.
func (s *simulation) Run(ctx context.Context, tick time.Duration) error {
	if len(s.movers) == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil

		case now := <-ticker.C:
			s.step(now.Sub(last).Seconds())
			last = now
		}
	}
}

// step moves every dynamic entity and bounces it off the world limits.
func (s *simulation) step(dt float64) {
	half := s.conf.WorldSize / 2

	for i := range s.movers {
		m := &s.movers[i]
		b := m.entity.Bounds()
		next := b.Translate(m.velocity.Mul(dt))

		v := [3]float64{m.velocity.X, m.velocity.Y, m.velocity.Z}
		for axis := 0; axis < 3; axis++ {
			if (geom.Axis(next.Min, axis) < -half && v[axis] < 0) ||
				(geom.Axis(next.Max, axis) > half && v[axis] > 0) {
				v[axis] = -v[axis]
			}
		}

		m.velocity = geom.Vec(v[0], v[1], v[2])
		m.entity.SetBounds(b.Translate(m.velocity.Mul(dt)))
	}
}
