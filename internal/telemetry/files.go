package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ReadSnapshotFile decodes a snapshot captured to disk, for offline audits.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSnapshotUnavailable, path, err)
	}
	return &snap, nil
}

// ReadSignalsFile decodes a semantic-signal payload captured to disk.
func ReadSignalsFile(path string) (*SignalSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	var set SignalSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrSnapshotUnavailable, path, err)
	}
	return &set, nil
}

// FileSource serves a captured snapshot and signal payload with the same
// methods as Client.
type FileSource struct {
	SnapshotPath string
	SignalsPath  string
	Debug        bool
}

// FetchSnapshot implements the snapshot half of Client.
func (f FileSource) FetchSnapshot(_ context.Context) (*Snapshot, error) {
	snap, err := ReadSnapshotFile(f.SnapshotPath)
	if err != nil {
		return nil, err
	}
	if len(snap.Lines) == 0 {
		return nil, fmt.Errorf("%w: snapshot file %s has no lines", ErrSnapshotUnavailable, f.SnapshotPath)
	}
	return snap, nil
}

// FetchSemanticSignals resolves equipmentID against snap and returns the
// captured signals. Without a signals file the set is empty.
func (f FileSource) FetchSemanticSignals(_ context.Context, snap *Snapshot, scope Scope, equipmentID string) (*SignalSet, error) {
	lineID, stationID, err := ResolveEquipment(snap, scope, equipmentID, f.Debug)
	if err != nil {
		return nil, err
	}
	set := &SignalSet{}
	if f.SignalsPath != "" {
		if set, err = ReadSignalsFile(f.SignalsPath); err != nil {
			return nil, err
		}
	}
	set.Scope = scope
	set.LineID = lineID
	set.StationID = stationID
	return set, nil
}
