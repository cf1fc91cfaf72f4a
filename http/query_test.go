package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/occlusion/bvh"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/models"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newTestScene(t *testing.T) *models.Scene {
	manager := models.NewManager(
		occlusion.WithName(t.Name()),
		occlusion.WithTreeOptions(bvh.WithValidation(true)),
	)
	scene := models.NewScene(1, time.Hour, manager)
	t.Cleanup(scene.Close)

	entities := []*models.Entity{
		models.NewEntity(scene.NewEntityID(), "crate", occlusion.Dynamic, geom.Box(0, 0, 0, 1, 1, 1)),
		models.NewEntity(scene.NewEntityID(), "lamp", occlusion.Light, geom.Box(0, 2, 0, 1, 3, 1)),
		models.NewEntity(scene.NewEntityID(), "wall", occlusion.Static, geom.Box(50, 0, 0, 51, 5, 5)),
	}
	for _, e := range entities {
		require.NoError(t, scene.AddEntity(e))
	}
	scene.Frame()
	return scene
}

func postQuery(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(body)))
	return w
}

func TestHandleQuery(t *testing.T) {
	scene := newTestScene(t)
	h := HandleQuery(scene)

	t.Run("objects in the volume are returned", func(t *testing.T) {
		w := postQuery(t, h, `{"min":[-1,-1,-1],"max":[2,4,2]}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var res QueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Len(t, res.Objects, 2)

		names := map[string]string{}
		for _, o := range res.Objects {
			names[o.Name] = o.Category
		}
		require.Equal(t, map[string]string{
			"crate": "dynamic",
			"lamp":  "light",
		}, names)
	})

	t.Run("objects of a category are returned", func(t *testing.T) {
		w := postQuery(t, h, `{"min":[-1,-1,-1],"max":[2,4,2],"category":"light"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var res QueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Equal(t, []QueryObject{{
			ID:       2,
			Name:     "lamp",
			Category: "light",
			Min:      [3]float64{0, 2, 0},
			Max:      [3]float64{1, 3, 1},
		}}, res.Objects)
	})

	t.Run("empty volume returns no objects", func(t *testing.T) {
		w := postQuery(t, h, `{"min":[100,100,100],"max":[101,101,101]}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.JSONEq(t, `{"objects":[]}`, w.Body.String())
	})

	t.Run("invalid bounds return an error", func(t *testing.T) {
		w := postQuery(t, h, `{"min":[1,1,1],"max":[0,0,0]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var res errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Equal(t, ErrTypeBadRequest, res.Type)
	})

	t.Run("unknown category returns an error", func(t *testing.T) {
		w := postQuery(t, h, `{"min":[0,0,0],"max":[1,1,1],"category":"sound"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var res errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Equal(t, occlusion.ErrTypeUnknownCategory, res.Type)
	})

	t.Run("malformed body returns an error", func(t *testing.T) {
		w := postQuery(t, h, `{"min":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other methods are not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/query", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestQueryRequestBounds(t *testing.T) {
	req := QueryRequest{
		Min: [3]float64{1, 2, 3},
		Max: [3]float64{4, 5, 6},
	}
	require.Equal(t, geom.Box(1, 2, 3, 4, 5, 6), req.Bounds())
}
