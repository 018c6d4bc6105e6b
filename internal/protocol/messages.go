package protocol

import (
	"time"

	"tilecensus.ai/internal/census"
)

type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// SendLatest asks for the most recent report right after subscribing.
	SendLatest bool `json:"send_latest,omitempty"`
}

type EntryRow struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

type CensusReportMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	RunID           string     `json:"run_id"`
	WorldID         string     `json:"world_id"`
	Tick            uint64     `json:"tick"`
	StartedAt       string     `json:"started_at"`
	DurationMs      int64      `json:"duration_ms"`
	Tiles           int        `json:"tiles"`
	Path            string     `json:"path,omitempty"`
	Entries         []EntryRow `json:"entries"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewReportMsg(r *census.Report) CensusReportMsg {
	rows := make([]EntryRow, 0, len(r.Entries))
	for _, e := range r.Entries {
		rows = append(rows, EntryRow{Code: string(e.Code), Count: e.Count})
	}
	return CensusReportMsg{
		Type:            TypeCensusReport,
		ProtocolVersion: Version,
		RunID:           r.ID,
		WorldID:         r.WorldID,
		Tick:            r.Tick,
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339Nano),
		DurationMs:      r.Duration.Milliseconds(),
		Tiles:           r.Tiles,
		Path:            r.Path,
		Entries:         rows,
	}
}

func NewErrorMsg(err error) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		Code:            CodeForError(err),
		Message:         err.Error(),
	}
}
