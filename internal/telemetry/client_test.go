package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() map[string]any {
	return map[string]any{
		"plant": "Torino",
		"lines": map[string]any{
			"A01": map[string]any{
				"name": "Assembly 1", "status": "running", "oee": 0.71,
				"availability": 0.9, "performance": 0.85, "quality": 0.93,
				"stations": map[string]any{
					"ST18": map[string]any{"name": "Torque", "type": "assembly", "state": "running", "cycle_time_s": 42.0, "good_count": 0, "scrap_count": 2, "critical": true},
					"ST19": map[string]any{"name": "Vision", "type": "inspection", "state": "idle", "cycle_time_s": 12.0, "good_count": 120},
				},
			},
			"B02": map[string]any{
				"name": "Packaging", "status": "running",
				"stations": map[string]any{
					"PK-Wrapper-01": map[string]any{"name": "Wrapper", "state": "running", "good_count": 80},
				},
			},
		},
	}
}

func newRuntimeServer(t *testing.T, signalsHits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case DefaultSnapshotPath:
			json.NewEncoder(w).Encode(testSnapshot())
		case DefaultSignalsPath:
			if signalsHits != nil {
				atomic.AddInt32(signalsHits, 1)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"semantic_signals": []map[string]any{
					{"semantic_id": "A01.ST18.good_count", "value": 0, "unit": "pcs", "quality": "good", "station_id": r.URL.Query().Get("station_id")},
					{"semantic_id": "A01.ST18.operational_mode", "value": "startup"},
				},
				"validation":       map[string]any{"valid": true},
				"material_context": map[string]any{"evidence_present": false, "active_serial": nil},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchSnapshot(t *testing.T) {
	server := newRuntimeServer(t, nil)
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, APIKey: "test-key"})
	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Torino", snap.Plant)
	assert.Equal(t, []string{"A01", "B02"}, snap.LineIDs())
	st := snap.Lines["A01"].Stations["ST18"]
	assert.True(t, st.Critical)
	assert.Equal(t, 0, st.GoodCount)
	assert.Equal(t, 42.0, st.CycleTimeS)
}

func TestFetchSnapshot_Unauthorized(t *testing.T) {
	server := newRuntimeServer(t, nil)
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, APIKey: "wrong"})
	snap, err := client.FetchSnapshot(context.Background())
	assert.Nil(t, snap)
	assert.True(t, errors.Is(err, ErrSnapshotUnavailable))
}

func TestFetchSnapshot_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(testSnapshot())
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Retries: 2})
	client.backoff = []time.Duration{time.Millisecond}
	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Torino", snap.Plant)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchSnapshot_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Retries: 3})
	client.backoff = []time.Duration{time.Millisecond}
	_, err := client.FetchSnapshot(context.Background())
	assert.True(t, errors.Is(err, ErrSnapshotUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchSnapshot_EmptyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"plant":"x","lines":{}}`))
	}))
	defer server.Close()

	_, err := NewClient(Options{BaseURL: server.URL}).FetchSnapshot(context.Background())
	assert.True(t, errors.Is(err, ErrSnapshotUnavailable))
}

func TestFetchSnapshot_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond, Retries: 1})
	start := time.Now()
	_, err := client.FetchSnapshot(context.Background())
	assert.True(t, errors.Is(err, ErrSnapshotUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchSemanticSignals_Station(t *testing.T) {
	var hits int32
	server := newRuntimeServer(t, &hits)
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, APIKey: "test-key"})
	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)

	set, err := client.FetchSemanticSignals(context.Background(), snap, ScopeStation, "st18")
	require.NoError(t, err)
	assert.Equal(t, "A01", set.LineID)
	assert.Equal(t, "ST18", set.StationID)
	require.Len(t, set.Signals, 2)
	v, ok := set.Signals[0].Number()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, "ST18", set.Signals[0].StationID)
	assert.Equal(t, "startup", set.Signals[1].Text())
	require.NotNil(t, set.MaterialContext)
	assert.False(t, set.MaterialContext.EvidencePresent)
	assert.Empty(t, set.MaterialContext.ActiveSerial)
}

func TestFetchSemanticSignals_UnknownEquipment(t *testing.T) {
	var hits int32
	server := newRuntimeServer(t, &hits)
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, APIKey: "test-key"})
	snap, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)

	_, err = client.FetchSemanticSignals(context.Background(), snap, ScopeStation, "ZZ99")
	assert.True(t, errors.Is(err, ErrEquipmentNotFound))
	_, err = client.FetchSemanticSignals(context.Background(), snap, ScopeLine, "C03")
	assert.True(t, errors.Is(err, ErrEquipmentNotFound))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope(" Station ")
	require.NoError(t, err)
	assert.Equal(t, ScopeStation, s)
	_, err = ParseScope("plant")
	assert.Error(t, err)
}
