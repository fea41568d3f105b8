package opsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"skyblock-ah-tracker/internal/model"
	"skyblock-ah-tracker/internal/repository"
)

func newTestServer(t *testing.T) (*httptest.Server, repository.Store) {
	t.Helper()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s := New("127.0.0.1:0", store)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, store
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func getEnvelope(t *testing.T, url string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, env
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	status, env := getEnvelope(t, ts.URL+"/healthz")
	if status != http.StatusOK || !env.Success {
		t.Errorf("healthz = %d success=%v", status, env.Success)
	}
}

func TestRunsEndpoint(t *testing.T) {
	ts, store := newTestServer(t)
	ctx := context.Background()

	err := store.Atomic(ctx, func(tx repository.Tx) error {
		return tx.InsertRun(ctx, model.RunRecord{
			RunID:      "run-1",
			StartedAt:  time.UnixMilli(1700000000000).UTC(),
			FinishedAt: time.UnixMilli(1700000030000).UTC(),
			Pages:      2,
			Fetched:    40,
			Admitted:   12,
			Status:     model.RunStatusCompleted,
		})
	})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}

	status, env := getEnvelope(t, ts.URL+"/runs")
	if status != http.StatusOK || !env.Success {
		t.Fatalf("runs = %d success=%v error=%q", status, env.Success, env.Error)
	}

	var runs []model.RunRecord
	if err := json.Unmarshal(env.Data, &runs); err != nil {
		t.Fatalf("unmarshal runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Admitted != 12 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestRunsEndpointBadLimit(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, limit := range []string{"0", "-3", "9999", "abc"} {
		status, env := getEnvelope(t, ts.URL+"/runs?limit="+limit)
		if status != http.StatusBadRequest || env.Success {
			t.Errorf("limit=%s: status = %d success=%v, want 400", limit, status, env.Success)
		}
	}
}
