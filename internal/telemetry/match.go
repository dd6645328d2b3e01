package telemetry

import "strings"

// MatchKind records which tier resolved an equipment id.
type MatchKind string

const (
	MatchExact           MatchKind = "exact"
	MatchCaseInsensitive MatchKind = "case_insensitive"
	MatchSubstring       MatchKind = "substring"
)

// StationRef locates a station inside a snapshot.
type StationRef struct {
	LineID    string
	StationID string
	Station   Station
	Match     MatchKind
}

// FindStation resolves id against every station in the snapshot: exact,
// then case-insensitive, then substring containment in either direction.
// Within a tier the first hit in sorted (line, station) order wins.
func (s *Snapshot) FindStation(id string) (StationRef, bool) {
	if s == nil || id == "" {
		return StationRef{}, false
	}
	lower := strings.ToLower(id)

	tiers := []struct {
		kind  MatchKind
		match func(candidate string) bool
	}{
		{MatchExact, func(c string) bool { return c == id }},
		{MatchCaseInsensitive, func(c string) bool { return strings.EqualFold(c, id) }},
		{MatchSubstring, func(c string) bool {
			cl := strings.ToLower(c)
			return strings.Contains(cl, lower) || strings.Contains(lower, cl)
		}},
	}

	lineIDs := s.LineIDs()
	for _, tier := range tiers {
		for _, lineID := range lineIDs {
			line := s.Lines[lineID]
			for _, stationID := range line.StationIDs() {
				if tier.match(stationID) {
					return StationRef{
						LineID:    lineID,
						StationID: stationID,
						Station:   line.Stations[stationID],
						Match:     tier.kind,
					}, true
				}
			}
		}
	}
	return StationRef{}, false
}

// FindLine resolves a line id exactly, then case-insensitively.
func (s *Snapshot) FindLine(id string) (string, Line, bool) {
	if s == nil || id == "" {
		return "", Line{}, false
	}
	if l, ok := s.Lines[id]; ok {
		return id, l, true
	}
	for _, lineID := range s.LineIDs() {
		if strings.EqualFold(lineID, id) {
			return lineID, s.Lines[lineID], true
		}
	}
	return "", Line{}, false
}
