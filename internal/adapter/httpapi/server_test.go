package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengueviewer/atlas-service/internal/atlas"
	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/forecast"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

type fakeAtlas struct {
	weeks  map[string][]string
	slices map[string][]domain.EnrichedRecord
	errs   map[string]error
}

func (f *fakeAtlas) Regions() []string {
	return []string{"global", "thailand"}
}

func (f *fakeAtlas) Weeks(_ context.Context, region string) ([]string, error) {
	if err, ok := f.errs[region]; ok {
		return nil, err
	}
	if weeks, ok := f.weeks[region]; ok {
		return weeks, nil
	}
	return nil, atlas.ErrUnknownRegion
}

func (f *fakeAtlas) Slice(_ context.Context, region, bucket string) ([]domain.EnrichedRecord, error) {
	if err, ok := f.errs[region]; ok {
		return nil, err
	}
	if _, ok := f.weeks[region]; !ok {
		return nil, atlas.ErrUnknownRegion
	}
	return f.slices[region+"|"+bucket], nil
}

type fakeModel struct {
	metrics forecast.ModelMetrics
	graph   forecast.GraphSeries
	err     error
}

func (f *fakeModel) Metrics(context.Context) (forecast.ModelMetrics, error) {
	return f.metrics, f.err
}

func (f *fakeModel) Graph(_ context.Context, province string) (forecast.GraphSeries, error) {
	if f.err != nil {
		return forecast.GraphSeries{}, f.err
	}
	if province != "Phuket" {
		return forecast.GraphSeries{}, forecast.ErrUnknownProvince
	}
	return f.graph, nil
}

// sliceBody mirrors the time slice envelope with untyped features so tests
// can poke individual JSON fields.
type sliceBody struct {
	Week string           `json:"week"`
	Data []map[string]any `json:"data"`
}

type readiness struct{ err error }

func (r readiness) CheckReadiness(context.Context) error { return r.err }

func newTestServer(t *testing.T, a AtlasProvider, m ModelProvider, ready error) *Server {
	t.Helper()
	return NewServer(":0", a, m, readiness{err: ready},
		[]string{"http://localhost:5173"}, observability.NewMetricsForTesting(), slog.Default())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func defaultAtlas() *fakeAtlas {
	return &fakeAtlas{
		weeks: map[string][]string{
			"global":   {"2024-W01", "2024-W02"},
			"thailand": {"2024-01-01"},
		},
		slices: map[string][]domain.EnrichedRecord{
			"global|2024-W01": {
				{Key: "BRA", Name: "Brazil", Cases: 7, Density: 0.07, AreaKm2: 100},
			},
			"thailand|2024-01-01": {
				{Key: "PHUKET", Name: "Phuket", Cases: 3, Incidence: 8.5},
			},
		},
		errs: map[string]error{},
	}
}

func TestLegacyWeeksRoute(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/weeks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"2024-W01", "2024-W02"}, body["weeks"])
}

func TestLegacyCasesRouteCarriesCountryField(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/cases/2024-W01")
	require.Equal(t, http.StatusOK, rec.Code)

	var body sliceBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-W01", body.Week)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Brazil", body.Data[0]["country"])
	assert.Equal(t, "Brazil", body.Data[0]["name"])
	assert.Equal(t, 7.0, body.Data[0]["cases"])
	assert.Equal(t, 0.07, body.Data[0]["density"])
}

func TestRegionCasesRoute(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/thailand/cases/2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)

	var body sliceBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-01-01", body.Week)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "PHUKET", body.Data[0]["key"])
	assert.Equal(t, 8.5, body.Data[0]["incidence"])
	assert.NotContains(t, body.Data[0], "country")
}

func TestUnknownRegionIs404(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/atlantis/weeks")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/api/atlantis/cases/2024-W01")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnavailableRegionServesEmptyPayload(t *testing.T) {
	a := defaultAtlas()
	a.errs["brasil"] = errors.New("dataset file not found")
	a.weeks["brasil"] = nil
	s := newTestServer(t, a, nil, nil)

	rec := get(t, s, "/api/brasil/cases/2024-W01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"week":"2024-W01","data":[]}`, rec.Body.String())

	rec = get(t, s, "/api/brasil/weeks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"weeks":[]}`, rec.Body.String())
}

func TestRegionsRoute(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"regions":["global","thailand"]}`, rec.Body.String())
}

func TestModelMetricsRoute(t *testing.T) {
	model := &fakeModel{metrics: forecast.ModelMetrics{
		CutoffYear: 2024,
		Global:     forecast.ErrorMetrics{RMSEModel: 0.4, RMSEBase: 0.5},
	}}
	s := newTestServer(t, defaultAtlas(), model, nil)

	rec := get(t, s, "/api/thailand/model/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var body forecast.ModelMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2024, body.CutoffYear)
	assert.Equal(t, 0.4, body.Global.RMSEModel)
}

func TestModelGraphRoute(t *testing.T) {
	model := &fakeModel{graph: forecast.GraphSeries{Province: "Phuket", Dates: []string{"2024-02-01"}}}
	s := newTestServer(t, defaultAtlas(), model, nil)

	rec := get(t, s, "/api/thailand/model/graph?province=Phuket")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"province":"Phuket"`)

	rec = get(t, s, "/api/thailand/model/graph")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/thailand/model/graph?province=Atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLegacyModelGraphRouteAcceptsRegionParam(t *testing.T) {
	model := &fakeModel{graph: forecast.GraphSeries{Province: "Phuket"}}
	s := newTestServer(t, defaultAtlas(), model, nil)

	rec := get(t, s, "/api/model/graph?region=Phuket")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"province":"Phuket"`)
}

func TestModelRoutesWithoutModel(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	rec := get(t, s, "/api/thailand/model/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModelTrainingFailureIs503(t *testing.T) {
	model := &fakeModel{err: errors.New("no feature rows before cutoff year 2024")}
	s := newTestServer(t, defaultAtlas(), model, nil)

	rec := get(t, s, "/api/thailand/model/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/readyz").Code)

	unready := newTestServer(t, defaultAtlas(), nil, errors.New("no region has loaded yet"))
	rec := get(t, unready, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no region has loaded yet")
}

func TestCORSAllowList(t *testing.T) {
	s := newTestServer(t, defaultAtlas(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/weeks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/weeks", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/weeks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
