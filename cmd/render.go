package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/bgdnvk/shopfloor/internal/diagnostic"
	"github.com/bgdnvk/shopfloor/internal/expectation"
	"github.com/bgdnvk/shopfloor/internal/profile"
)

var (
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	severityStyle = map[expectation.Severity]lipgloss.Style{
		expectation.SeverityNormal:   lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		expectation.SeverityWarning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		expectation.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
	}
)

// writeStructured writes v as json or yaml. It reports false for any other
// format so the caller can fall back to text.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "", "text":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q (expected text, json or yaml)", format)
	}
}

func severityBadge(s expectation.Severity) string {
	style, ok := severityStyle[s]
	if !ok {
		style = mutedStyle
	}
	return style.Render("[" + strings.ToUpper(string(s)) + "]")
}

func renderResponse(w io.Writer, resp *diagnostic.Response) {
	md := resp.Metadata
	fmt.Fprintf(w, "%s %s %s  %s\n", severityBadge(md.Severity), md.Scope, md.EquipmentID,
		mutedStyle.Render(fmt.Sprintf("profile=%s plant=%s at %s", md.DomainProfile, md.Plant, md.Timestamp)))
	if md.Error {
		fmt.Fprintln(w, errorStyle.Render(md.ErrorCode+": "+md.ErrorMessage))
	}
	fmt.Fprintln(w)

	for _, sec := range []struct{ title, body string }{
		{"What is happening", resp.WhatIsHappening},
		{"Why this is happening", resp.WhyThisIsHappening},
		{"What to do now", resp.WhatToDoNow},
		{"What to check next", resp.WhatToCheckNext},
	} {
		fmt.Fprintln(w, headerStyle.Render(sec.title))
		body := sec.body
		if body == "" {
			body = mutedStyle.Render("(no content)")
		}
		fmt.Fprintf(w, "%s\n\n", body)
	}

	renderVerdict(w, md.ExpectationViolations, md.BlockingConditions, md.ExpectationWarnings, md.RequiresConfirmation)
	if len(md.RAGDocuments) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Sources"))
		for i, d := range md.RAGDocuments {
			fmt.Fprintf(w, "  [%d] %s (%s, %.3f)\n", i+1, d.Source, d.DocType, d.WeightedScore)
		}
	}
	if md.KnowledgeDegraded {
		fmt.Fprintln(w, mutedStyle.Render("knowledge index unavailable; no procedures were consulted"))
	}
	if md.MalformedResponse {
		fmt.Fprintln(w, mutedStyle.Render("model reply had no section headers; raw reply kept in metadata"))
	}
}

func renderVerdict(w io.Writer, violations, blocking, warnings []string, confirm bool) {
	if len(violations)+len(blocking)+len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Expectations"))
	for _, group := range []struct {
		label string
		items []string
	}{
		{"violated", violations},
		{"blocking", blocking},
		{"warning", warnings},
	} {
		for _, it := range group.items {
			fmt.Fprintf(w, "  %-9s %s\n", group.label, it)
		}
	}
	if confirm {
		fmt.Fprintln(w, errorStyle.Render("  human confirmation required before production continues"))
	}
	fmt.Fprintln(w)
}

func renderResult(w io.Writer, name string, r expectation.Result) {
	fmt.Fprintf(w, "%s %s\n\n", severityBadge(r.Severity), mutedStyle.Render("profile="+name))
	if !r.HasFindings() {
		fmt.Fprintln(w, "No expectation violations.")
		return
	}
	renderVerdict(w, r.ViolatedExpectations, r.BlockingConditions, r.Warnings, r.RequiresHumanConfirmation)
}

func renderProfiles(w io.Writer, list []profile.Summary) {
	for _, s := range list {
		marker := ""
		if s.Active {
			marker = headerStyle.Render(" (active)")
		}
		fmt.Fprintf(w, "  %s%s\n", s.Name, marker)
		fmt.Fprintf(w, "    %s [%s]\n", s.DisplayName, s.Family)
		if s.Description != "" {
			fmt.Fprintf(w, "    %s\n", mutedStyle.Render(s.Description))
		}
		fmt.Fprintln(w)
	}
}
