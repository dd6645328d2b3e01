// Package mcpserver exposes the diagnostic pipeline as MCP tools so agents
// and editors can request explanations over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/profile"
	"github.com/bgdnvk/shopfloor/internal/telemetry"
)

// Explainer is satisfied by diagnostic.Composer.
type Explainer interface {
	Explain(ctx context.Context, req diagnostic.Request) *diagnostic.Response
}

// Profiles is satisfied by profile.Store.
type Profiles interface {
	Active() *profile.DomainProfile
	Get(name string) (*profile.DomainProfile, bool)
	List() []profile.Summary
	Switch(name string) bool
}

// Server wraps an MCP server with the shopfloor tools registered.
type Server struct {
	mcp       *server.MCPServer
	explainer Explainer
	profiles  Profiles
	snapshots diagnostic.SnapshotSource
	debug     bool
}

// New registers the explain, evaluate_expectations, list_profiles and
// switch_profile tools.
func New(explainer Explainer, profiles Profiles, snapshots diagnostic.SnapshotSource, version string, debug bool) *Server {
	s := &Server{
		mcp:       server.NewMCPServer("shopfloor", version, server.WithToolCapabilities(false), server.WithRecovery()),
		explainer: explainer,
		profiles:  profiles,
		snapshots: snapshots,
		debug:     debug,
	}

	s.mcp.AddTool(mcp.NewTool("explain",
		mcp.WithDescription("Explain the current state of a production line or station using the active domain profile."),
		mcp.WithString("equipment_id", mcp.Required(), mcp.Description("Line id (e.g. A01) or station id (e.g. ST18)")),
		mcp.WithString("scope", mcp.Description("line or station"), mcp.Enum("line", "station")),
		mcp.WithString("profile", mcp.Description("Profile name for this request only; defaults to the active profile")),
	), s.handleExplain)

	s.mcp.AddTool(mcp.NewTool("evaluate_expectations",
		mcp.WithDescription("Run the deterministic expectation checks for a line or station without calling a language model."),
		mcp.WithString("equipment_id", mcp.Required(), mcp.Description("Line or station id")),
		mcp.WithString("scope", mcp.Description("line or station"), mcp.Enum("line", "station")),
		mcp.WithString("profile", mcp.Description("Profile name; defaults to the active profile")),
	), s.handleEvaluate)

	s.mcp.AddTool(mcp.NewTool("list_profiles",
		mcp.WithDescription("List the configured domain profiles and mark the active one."),
	), s.handleListProfiles)

	s.mcp.AddTool(mcp.NewTool("switch_profile",
		mcp.WithDescription("Make a configured domain profile the active one."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Profile name")),
	), s.handleSwitchProfile)

	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleExplain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	equipmentID, err := req.RequireString("equipment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dreq := diagnostic.Request{
		Scope:       req.GetString("scope", string(telemetry.ScopeStation)),
		EquipmentID: equipmentID,
		Profile:     req.GetString("profile", ""),
	}
	if s.debug {
		log.Printf("[mcp] explain %s/%s profile=%q", dreq.Scope, dreq.EquipmentID, dreq.Profile)
	}

	resp := s.explainer.Explain(ctx, dreq)
	return jsonResult(resp)
}

func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	equipmentID, err := req.RequireString("equipment_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	scope, err := telemetry.ParseScope(req.GetString("scope", string(telemetry.ScopeStation)))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p := s.profiles.Active()
	if name := req.GetString("profile", ""); name != "" {
		var ok bool
		if p, ok = s.profiles.Get(name); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown profile %q", name)), nil
		}
	}

	snap, err := s.snapshots.FetchSnapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	signals, err := s.snapshots.FetchSemanticSignals(ctx, snap, scope, equipmentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		Profile string `json:"profile"`
		expectation.Result
	}{Profile: p.Name, Result: expectation.Evaluate(snap, signals, p)})
}

func (s *Server) handleListProfiles(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.profiles.List())
}

func (s *Server) handleSwitchProfile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !s.profiles.Switch(name) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown profile %q", name)), nil
	}
	log.Printf("[mcp] active profile is now %s", name)
	return mcp.NewToolResultText(fmt.Sprintf("active profile: %s", name)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
