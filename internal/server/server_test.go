package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-forecast/internal/cache"
	"pharmacy-forecast/internal/engine"
	"pharmacy-forecast/internal/forecastapi"
	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/notify"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func forecastBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/history"):
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasSuffix(r.URL.Path, "/forecast"):
			values := make([]float64, 35)
			for i := range values {
				values[i] = 20
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"values": values, "model_type": "prophet", "accuracy": 0.88})
		case strings.HasSuffix(r.URL.Path, "/train"):
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "not enough data"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	logger := zerolog.Nop()
	reg := prometheus.NewRegistry()
	backend := forecastBackend(t)

	ctl := engine.New(engine.Options{}, engine.Deps{
		Service: forecastapi.NewClient(forecastapi.Options{BaseURL: backend.URL, Timeout: time.Second}, logger),
		Cache:   cache.New(logger, cache.WithMetrics(cache.NewMetrics(reg))),
		Notices: notify.NewBoard(notify.BoardOptions{}, nil, logger),
	}, logger)
	ctl.SetCatalog([]model.Target{
		{ID: 1, Type: model.TargetProduct, Name: "Ibuprofen capsule", UnitPrice: decimal.NewFromInt(4), CostPrice: decimal.NewFromInt(1)},
	})

	return New(Options{Gatherer: reg}, ctl, logger), reg
}

func do(t *testing.T, s *Server, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func TestChartRequiresTarget(t *testing.T) {
	s, _ := newTestServer(t)

	status, env := do(t, s, http.MethodGet, "/api/chart", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = do(t, s, http.MethodPost, "/api/target", `{"key":"product:99"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, s, http.MethodPost, "/api/timeframe", `{"timeframe":"5Y"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSelectTargetAndReadChart(t *testing.T) {
	s, reg := newTestServer(t)

	status, env := do(t, s, http.MethodPost, "/api/target", `{"key":"product:1"}`)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = do(t, s, http.MethodGet, "/api/chart", "")
	require.Equal(t, http.StatusOK, status)
	var ds struct {
		Rows []struct {
			Actual    *float64 `json:"actual"`
			Predicted *float64 `json:"predicted"`
			Lower     *float64 `json:"confidence_lower"`
		} `json:"rows"`
		Reconciled bool `json:"reconciled"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ds))
	assert.True(t, ds.Reconciled)
	require.Len(t, ds.Rows, 35)
	assert.Nil(t, ds.Rows[34].Actual)
	assert.NotNil(t, ds.Rows[34].Lower)
	assert.Nil(t, ds.Rows[0].Lower)

	status, env = do(t, s, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, status)
	var bundle model.MetricsBundle
	require.NoError(t, json.Unmarshal(env.Data, &bundle))
	assert.Equal(t, "prophet", bundle.Model)
	assert.Equal(t, 0.88, *bundle.Accuracy)

	status, env = do(t, s, http.MethodGet, "/api/notices", "")
	require.Equal(t, http.StatusOK, status)
	var notices []notify.Notice
	require.NoError(t, json.Unmarshal(env.Data, &notices))
	require.Len(t, notices, 1, "history outage leaves a notice")

	status, _ = do(t, s, http.MethodDelete, "/api/notices/"+notices[0].ID, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, s, http.MethodDelete, "/api/notices/"+notices[0].ID, "")
	assert.Equal(t, http.StatusNotFound, status)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRefreshThrottledAndRetrainFailure(t *testing.T) {
	s, _ := newTestServer(t)
	status, _ := do(t, s, http.MethodPost, "/api/target", `{"key":"product:1"}`)
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, s, http.MethodPost, "/api/forecast/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, status)

	status, _ = do(t, s, http.MethodPost, "/api/retrain", `{}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := do(t, s, http.MethodPost, "/api/retrain", `{"key":"product:1"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, env.Message, "not enough data")

	status, env = do(t, s, http.MethodPost, "/api/retrain/bulk", "")
	require.Equal(t, http.StatusOK, status)
	var bulk bulkRetrainResponse
	require.NoError(t, json.Unmarshal(env.Data, &bulk))
	assert.Equal(t, 1, bulk.Summary.Failed)
	require.Len(t, bulk.Progress, 1)
	assert.NotEmpty(t, bulk.Progress[0].Error)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/target", `{"key":"product:1"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pharmaforecast_series_cache")
}
