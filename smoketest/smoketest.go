package smoketest

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/bvh"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/jobs"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/segmentio/encoding/json"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	ErrTypeScenarioFailed = "smoke_test_scenario_failed"
)

type Options struct {
	// The scheduler used by the scratch managers.
	Scheduler jobs.Scheduler

	// The maximum duration of a smoke test run.
	Timeout time.Duration

	// An optional function called with the results of each run.
	SendResult func(context.Context, Results) error
}

type Results struct {
	Status           string           `json:"status"`
	DurationMilliSec float64          `json:"duration_ms"`
	Scenarios        []ScenarioResult `json:"scenarios"`
}

type ScenarioResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type scenario struct {
	name string
	run  func(*scratchManager) error
}

type scratchManager = occlusion.Manager[string, struct{}]

var scenarios = []scenario{
	{name: "query_disjoint_boxes", run: queryDisjointBoxes},
	{name: "remove_middle_object", run: removeMiddleObject},
	{name: "add_remove_before_update", run: addRemoveBeforeUpdate},
	{name: "round_trip", run: roundTrip},
}

// HandleSmokeTest runs the smoke test scenarios and responds with the
// results.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := RunSmokeTest(ctx, opts)

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("status", res.Status).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if res.Status != StatusSuccess {
			w.WriteHeader(http.StatusInternalServerError)
		}

		if err := json.NewEncoder(w).Encode(res); err != nil {
			logs.Warn(errors.New("writing smoke test result failed").Wrap(err))
		}
	}
}

// RunSmokeTest runs every scenario against its own scratch manager. Scenarios
// that did not start before the timeout are reported as failed.
func RunSmokeTest(ctx context.Context, opts Options) Results {
	if opts.Scheduler == nil {
		opts.Scheduler = jobs.Inline{}
	}
	if opts.Timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	res := Results{Status: StatusSuccess}

	for _, s := range scenarios {
		r := ScenarioResult{
			Name:   s.name,
			Status: StatusSuccess,
		}

		err := ctx.Err()
		if err == nil {
			err = s.run(newScratchManager(opts.Scheduler))
		}
		if err != nil {
			r.Status = StatusFailed
			r.Error = err.Error()
			res.Status = StatusFailed

			logs.WithTag("scenario", s.name).Warn(err)
		}

		res.Scenarios = append(res.Scenarios, r)
	}

	res.DurationMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
	instrumentRun(res.Status, time.Since(start))
	return res
}

func newScratchManager(s jobs.Scheduler) *scratchManager {
	return occlusion.NewManager[string, struct{}](
		occlusion.WithName("smoketest"),
		occlusion.WithScheduler(s),
		occlusion.WithTreeOptions(bvh.WithValidation(true)),
	)
}

func queryDisjointBoxes(m *scratchManager) error {
	if _, err := m.AddObject(occlusion.Dynamic, "near", geom.Box(0, 0, 0, 1, 1, 1), struct{}{}); err != nil {
		return err
	}
	if _, err := m.AddObject(occlusion.Dynamic, "far", geom.Box(10, 10, 10, 11, 11, 11), struct{}{}); err != nil {
		return err
	}
	m.Update()

	if err := expectKeys(m, geom.Box(-1, -1, -1, 2, 2, 2), "near"); err != nil {
		return err
	}
	return expectKeys(m, geom.Box(50, 50, 50, 60, 60, 60))
}

func removeMiddleObject(m *scratchManager) error {
	var ids []occlusion.ID
	for i, k := range []string{"first", "middle", "last"} {
		x := float64(i * 10)

		id, err := m.AddObject(occlusion.Dynamic, k, geom.Box(x, 0, 0, x+1, 1, 1), struct{}{})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	m.Update()

	if err := m.RemoveObject(ids[1]); err != nil {
		return err
	}
	m.Update()

	if n := m.Len(); n != 2 {
		return scenarioFailed("unexpected object count", n, 2)
	}
	return expectKeys(m, geom.Box(-100, -100, -100, 100, 100, 100), "first", "last")
}

func addRemoveBeforeUpdate(m *scratchManager) error {
	id, err := m.AddObject(occlusion.Dynamic, "transient", geom.Box(0, 0, 0, 1, 1, 1), struct{}{})
	if err != nil {
		return err
	}
	if err := m.RemoveObject(id); err != nil {
		return err
	}
	m.Update()

	if n := m.Len(); n != 0 {
		return scenarioFailed("unexpected object count", n, 0)
	}
	return expectKeys(m, geom.Box(-100, -100, -100, 100, 100, 100))
}

func roundTrip(m *scratchManager) error {
	if _, err := m.AddObject(occlusion.Static, "ground", geom.Box(-5, -1, -5, 5, 0, 5), struct{}{}); err != nil {
		return err
	}
	id, err := m.AddObject(occlusion.Dynamic, "visitor", geom.Box(0, 0, 0, 1, 1, 1), struct{}{})
	if err != nil {
		return err
	}
	m.Update()

	if err := m.RemoveObject(id); err != nil {
		return err
	}
	m.Update()

	tree, _ := m.Tree(occlusion.Dynamic)
	if stats := tree.Stats(); stats.Leaves != 0 {
		return scenarioFailed("dynamic tree is not empty", stats.Leaves, 0)
	}
	return expectKeys(m, geom.Box(-100, -100, -100, 100, 100, 100), "ground")
}

func expectKeys(m *scratchManager, b geom.AABB, want ...string) error {
	res := m.Query(geom.BoxFrustum(b)).All()

	got := make([]string, 0, len(res))
	for _, r := range res {
		got = append(got, r.Key)
	}
	sort.Strings(got)
	sort.Strings(want)

	if len(got) != len(want) {
		return scenarioFailed("unexpected query results", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return scenarioFailed("unexpected query results", got, want)
		}
	}
	return nil
}

func scenarioFailed(msg string, got, want any) error {
	return errors.New(msg).
		WithType(ErrTypeScenarioFailed).
		WithTag("got", got).
		WithTag("want", want)
}
