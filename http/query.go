package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/occlusion/geom"
	"github.com/aukilabs/occlusion/models"
	"github.com/aukilabs/occlusion/occlusion"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest = "bad_request"

	maxQueryBodySize = 1 << 16
)

// QueryRequest is the body of a query. Min and max are the corners of an
// axis-aligned view volume. An empty category queries every category.
type QueryRequest struct {
	Min      [3]float64 `json:"min"`
	Max      [3]float64 `json:"max"`
	Category string     `json:"category,omitempty"`
}

func (r QueryRequest) Bounds() geom.AABB {
	return geom.Box(r.Min[0], r.Min[1], r.Min[2], r.Max[0], r.Max[1], r.Max[2])
}

type QueryResponse struct {
	Objects []QueryObject `json:"objects"`
}

type QueryObject struct {
	ID       uint32     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Category string     `json:"category"`
	Min      [3]float64 `json:"min"`
	Max      [3]float64 `json:"max"`
}

func newQueryObject(e *models.Entity) QueryObject {
	b := e.Bounds()
	return QueryObject{
		ID:       e.ID,
		Name:     e.Name,
		Category: e.Category.String(),
		Min:      [3]float64{b.Min.X, b.Min.Y, b.Min.Z},
		Max:      [3]float64{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// HandleQuery responds with the scene entities inside the requested view
// volume.
func HandleQuery(scene *models.Scene) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req QueryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodySize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("decoding query failed").
				WithType(ErrTypeBadRequest).
				Wrap(err))
			return
		}

		bounds := req.Bounds()
		if !bounds.IsValid() {
			writeError(w, http.StatusBadRequest, errors.New("invalid query bounds").
				WithType(ErrTypeBadRequest).
				WithTag("bounds", bounds.String()))
			return
		}
		frustum := geom.BoxFrustum(bounds)

		var entities []*models.Entity
		if req.Category == "" {
			entities = scene.VisibleEntities(frustum)
		} else {
			c, err := occlusion.ParseCategory(req.Category)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}

			results, err := scene.Manager().QueryCategory(frustum, c)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			for _, res := range results {
				entities = append(entities, res.Payload)
			}
		}

		res := QueryResponse{
			Objects: make([]QueryObject, len(entities)),
		}
		for i, e := range entities {
			res.Objects[i] = newQueryObject(e)
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	logs.Debug(err)

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
	}
}
