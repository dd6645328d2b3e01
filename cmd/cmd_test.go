package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
	"github.com/bgdnvk/shopfloor/internal/expectation"
)

func TestWriteStructured(t *testing.T) {
	r := expectation.Empty()

	var buf bytes.Buffer
	handled, err := writeStructured(&buf, "json", r)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, buf.String(), `"severity": "normal"`)

	buf.Reset()
	handled, err = writeStructured(&buf, "yaml", r)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, buf.String(), "severity: normal")
	assert.Contains(t, buf.String(), "violated_expectations: []")

	handled, err = writeStructured(&buf, "text", r)
	assert.NoError(t, err)
	assert.False(t, handled)

	handled, err = writeStructured(&buf, "xml", r)
	assert.Error(t, err)
	assert.True(t, handled)
}

func TestRenderResponse(t *testing.T) {
	resp := &diagnostic.Response{
		Sections: diagnostic.Sections{
			WhatIsHappening: "ST18 produced nothing for 22 minutes.",
			WhatToDoNow:     "Confirm with the shift lead.",
		},
		Metadata: diagnostic.Metadata{
			Scope:                 "station",
			EquipmentID:           "ST18",
			DomainProfile:         "aerospace_defence",
			Severity:              expectation.SeverityCritical,
			ExpectationViolations: []string{expectation.ViolationMissingSerialBinding},
			BlockingConditions:    []string{expectation.BlockMissingSerialBinding},
			RequiresConfirmation:  true,
			RAGDocuments:          []diagnostic.RAGDocument{{ID: "wi-07", DocType: "work_instruction", Source: "work_instructions/wi-07.md", WeightedScore: 1.4}},
			KnowledgeDegraded:     false,
		},
	}
	var buf bytes.Buffer
	renderResponse(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, "[CRITICAL]")
	assert.Contains(t, out, "ST18 produced nothing")
	assert.Contains(t, out, "(no content)")
	assert.Contains(t, out, "violated  missing_serial_binding")
	assert.Contains(t, out, "human confirmation required")
	assert.Contains(t, out, "[1] work_instructions/wi-07.md (work_instruction, 1.400)")
	assert.Less(t, strings.Index(out, "What is happening"), strings.Index(out, "What to check next"))
}

func TestMaskSecrets(t *testing.T) {
	in := map[string]any{
		"runtime": map[string]any{"api_key": "abc", "base_url": "http://x"},
		"ai": map[string]any{"providers": map[string]any{
			"openai": map[string]any{"api_key_env": "OPENAI_API_KEY", "api_key": ""},
		}},
		"knowledge": map[string]any{"postgres": map[string]any{"dsn": "postgres://u:p@h/db"}},
	}
	out := maskSecrets(in)

	assert.Equal(t, "********", out["runtime"].(map[string]any)["api_key"])
	assert.Equal(t, "http://x", out["runtime"].(map[string]any)["base_url"])
	openai := out["ai"].(map[string]any)["providers"].(map[string]any)["openai"].(map[string]any)
	assert.Equal(t, "OPENAI_API_KEY", openai["api_key_env"])
	assert.Equal(t, "", openai["api_key"])
	assert.Equal(t, "********", out["knowledge"].(map[string]any)["postgres"].(map[string]any)["dsn"])
	assert.Equal(t, "abc", in["runtime"].(map[string]any)["api_key"], "input is not modified")
}

func TestSaveActiveProfile(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "fresh.yaml")
	require.NoError(t, saveActiveProfile(fresh, "pharma_process"))
	assert.Equal(t, "pharma_process", readActive(t, fresh))

	existing := filepath.Join(dir, "existing.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("# keep me\ndebug: true\nprofiles:\n  source: configs/profiles.yaml\n  active: automotive_discrete\n"), 0o600))
	require.NoError(t, saveActiveProfile(existing, "aerospace_defence"))
	assert.Equal(t, "aerospace_defence", readActive(t, existing))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# keep me")
	assert.Contains(t, string(data), "source: configs/profiles.yaml")
	assert.Contains(t, string(data), "debug: true")
}

func readActive(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg struct {
		Profiles struct {
			Active string `yaml:"active"`
		} `yaml:"profiles"`
	}
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	return cfg.Profiles.Active
}

func TestEvaluateCommand_Offline(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
		"--profiles", "../configs/profiles.yaml",
		"evaluate", "ST18",
		"--profile", "aerospace_defence",
		"--snapshot-file", "../internal/telemetry/testdata/snapshot.json",
		"--signals-file", "../internal/telemetry/testdata/signals_st18.json",
		"--output", "json",
	})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var got expectation.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, expectation.SeverityCritical, got.Severity)
	assert.Equal(t, []string{
		expectation.ViolationCriticalStationRequiresEvidence,
		expectation.ViolationZeroOutputRequiresAuthorization,
		expectation.ViolationMissingSerialBinding,
	}, got.ViolatedExpectations)
	assert.True(t, got.RequiresHumanConfirmation)
}
