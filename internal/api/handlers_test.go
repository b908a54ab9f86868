package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldchain-monitor/internal/model"
	"coldchain-monitor/internal/store"
)

// stubStore vrací připravené odpovědi a zaznamenává argumenty dotazů.
type stubStore struct {
	entries []model.HistoryEntry
	cached  *model.Snapshot
	latest  *model.Snapshot

	historyErr error
	cachedErr  error
	latestErr  error

	gotSince time.Time
	gotLimit int

	latestCalled bool
}

func (s *stubStore) History(ctx context.Context, since time.Time, limit int) ([]model.HistoryEntry, error) {
	s.gotSince = since
	s.gotLimit = limit
	return s.entries, s.historyErr
}

func (s *stubStore) Latest(ctx context.Context) (*model.Snapshot, error) {
	s.latestCalled = true
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.latest, nil
}

func (s *stubStore) CachedSnapshot(ctx context.Context) (*model.Snapshot, error) {
	return s.cached, s.cachedErr
}

func newTestServer(st *stubStore) *httptest.Server {
	h := NewHandler(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return httptest.NewServer(CorsMiddleware(mux))
}

func testSnapshot() *model.Snapshot {
	return &model.Snapshot{
		ReadingID:   42,
		DeviceID:    "cargo-01",
		Temperature: 12.5,
		Vibration:   0.3,
		RPM:         450,
		CapturedAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Probability: 0.8,
		Reasons:     []string{"temperature-excursion", "cooling-fan-failure"},
	}
}

func TestLatestNotFound(t *testing.T) {
	st := &stubStore{latestErr: store.ErrNoData}
	srv := newTestServer(st)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Prázdná DB = 404 se zprávou, žádný crash.
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "No data found", body["message"])
}

func TestLatestFromCache(t *testing.T) {
	st := &stubStore{cached: testSnapshot()}
	srv := newTestServer(st)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, st.latestCalled, "při cache hitu se do SQL nejde")

	var snap model.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(42), snap.ReadingID)
	assert.InDelta(t, 0.8, snap.Probability, 1e-9)
}

func TestLatestFallsBackToSQL(t *testing.T) {
	// Cache miss (nil) i chyba cache vedou do SQL.
	for name, st := range map[string]*stubStore{
		"cache miss":  {latest: testSnapshot()},
		"cache error": {cachedErr: assert.AnError, latest: testSnapshot()},
	} {
		t.Run(name, func(t *testing.T) {
			srv := newTestServer(st)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/api/latest")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, st.latestCalled)
		})
	}
}

func TestHistoryDefaults(t *testing.T) {
	st := &stubStore{entries: []model.HistoryEntry{}}
	srv := newTestServer(st)
	defer srv.Close()

	before := time.Now().UTC()
	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1000, st.gotLimit)

	// Default okno je 60 minut zpět.
	wantSince := before.Add(-60 * time.Minute)
	assert.WithinDuration(t, wantSince, st.gotSince, 5*time.Second)
}

func TestHistoryParams(t *testing.T) {
	prob := 0.3
	st := &stubStore{entries: []model.HistoryEntry{
		{ID: 2, DeviceID: "cargo-01", Temperature: 9.0, RPM: 800, CapturedAt: time.Now().UTC(),
			Probability: &prob, Reasons: []string{"unstable-cooling"}},
		{ID: 1, DeviceID: "cargo-01", Temperature: 5.0, RPM: 1500, CapturedAt: time.Now().UTC()},
	}}
	srv := newTestServer(st)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?minutes=5&limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 2, st.gotLimit)

	var entries []model.HistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)

	// Čtení bez assessmentu má null riziko (degradovaný stav je vidět).
	assert.NotNil(t, entries[0].Probability)
	assert.Nil(t, entries[1].Probability)
}

func TestHistoryInvalidParamsFallBack(t *testing.T) {
	st := &stubStore{}
	srv := newTestServer(st)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history?minutes=abc&limit=-5")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1000, st.gotLimit)
}

func TestHistoryStoreError(t *testing.T) {
	st := &stubStore{historyErr: assert.AnError}
	srv := newTestServer(st)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestCorsPreflight(t *testing.T) {
	srv := newTestServer(&stubStore{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/latest", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
