package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

type stubExplainer struct {
	last diagnostic.Request
}

func (e *stubExplainer) Explain(_ context.Context, req diagnostic.Request) *diagnostic.Response {
	e.last = req
	return &diagnostic.Response{
		Sections: diagnostic.Sections{WhatIsHappening: "stopped"},
		Metadata: diagnostic.Metadata{EquipmentID: req.EquipmentID, Severity: expectation.SeverityNormal},
	}
}

func newTestServer(t *testing.T) (*Server, *stubExplainer, *profile.Store) {
	t.Helper()
	data, err := os.ReadFile("../../configs/profiles.yaml")
	require.NoError(t, err)
	store, err := profile.Parse(data)
	require.NoError(t, err)

	snaps := telemetry.FileSource{
		SnapshotPath: "../telemetry/testdata/snapshot.json",
		SignalsPath:  "../telemetry/testdata/signals_st18.json",
	}
	ex := &stubExplainer{}
	return New(ex, store, snaps, "test", false), ex, store
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleExplain(t *testing.T) {
	s, ex, _ := newTestServer(t)

	res, err := s.handleExplain(context.Background(), call(map[string]any{"equipment_id": "ST18", "profile": "pharma_process"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, diagnostic.Request{Scope: "station", EquipmentID: "ST18", Profile: "pharma_process"}, ex.last)

	var resp diagnostic.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "stopped", resp.WhatIsHappening)
	assert.Equal(t, "ST18", resp.Metadata.EquipmentID)

	res, err = s.handleExplain(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleEvaluate(t *testing.T) {
	s, _, _ := newTestServer(t)

	res, err := s.handleEvaluate(context.Background(), call(map[string]any{"equipment_id": "ST18", "scope": "station", "profile": "aerospace_defence"}))
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var got struct {
		Profile              string               `json:"profile"`
		ViolatedExpectations []string             `json:"violated_expectations"`
		Severity             expectation.Severity `json:"severity"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "aerospace_defence", got.Profile)
	assert.Equal(t, expectation.SeverityCritical, got.Severity)
	assert.Contains(t, got.ViolatedExpectations, expectation.ViolationCriticalStationRequiresEvidence)

	res, err = s.handleEvaluate(context.Background(), call(map[string]any{"equipment_id": "ST18", "profile": "shipbuilding"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleEvaluate(context.Background(), call(map[string]any{"equipment_id": "ZZ99"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "equipment not found")
}

func TestHandleProfiles(t *testing.T) {
	s, _, store := newTestServer(t)

	res, err := s.handleListProfiles(context.Background(), call(nil))
	require.NoError(t, err)
	var list []profile.Summary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "aerospace_defence", list[0].Name)
	assert.True(t, list[2].Active)

	res, err = s.handleSwitchProfile(context.Background(), call(map[string]any{"name": "pharma_process"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "pharma_process", store.Active().Name)

	res, err = s.handleSwitchProfile(context.Background(), call(map[string]any{"name": "shipbuilding"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "pharma_process", store.Active().Name)
}
