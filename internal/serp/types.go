// Package serp defines core types shared across the collection pipeline.
package serp

import (
	"net/http"
	"time"
)

// Column date layouts. Dates are stored ISO so lexical order is
// chronological; the display layout matches the spreadsheet headers the
// tool replaces.
const (
	ColumnDateLayout  = "2006-01-02"
	DisplayDateLayout = "02-Jan-2006"
)

// Query is one tracked search query. RowID is the stable identity that
// binds the query to its historical series; Text may be edited between runs.
type Query struct {
	RowID string `json:"row_id"`
	Text  string `json:"text"`
}

// RawResponse is the payload returned by a SearchClient for one query.
type RawResponse struct {
	Query        string
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	FetchedAt    time.Time
	UsedHeadless bool
}

// AbsenceReason classifies why a cell has no value for this run.
type AbsenceReason string

// Absence reasons recorded per row.
const (
	AbsenceNone      AbsenceReason = ""
	AbsenceTransient AbsenceReason = "transient"
	AbsencePermanent AbsenceReason = "permanent"
	AbsenceParse     AbsenceReason = "parse"
)

// SearchResult is the per-row outcome of one run. Absent means no value was
// obtained; it is never collapsed into a zero count.
type SearchResult struct {
	Query     Query         `json:"query"`
	Count     int64         `json:"count"`
	Absent    bool          `json:"absent"`
	Reason    AbsenceReason `json:"reason,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// RunState is the lifecycle stage of a run.
type RunState string

// Run states, in order of progression. Failed is reachable from any stage.
const (
	RunStateInit       RunState = "init"
	RunStateLoading    RunState = "loading"
	RunStateFetching   RunState = "fetching"
	RunStateParsing    RunState = "parsing"
	RunStateCommitting RunState = "committing"
	RunStateDone       RunState = "done"
	RunStateFailed     RunState = "failed"
)

// RunSummary is the user-visible report for one run. Parse failures are
// counted under AbsentPermanent and additionally broken out in
// ParseFailures so parser drift is distinguishable from rejected queries.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	ColumnDate      string    `json:"column_date"`
	State           RunState  `json:"state"`
	FailedStage     RunState  `json:"failed_stage,omitempty"`
	Degraded        bool      `json:"degraded"`
	Succeeded       int       `json:"succeeded"`
	AbsentTransient int       `json:"absent_transient"`
	AbsentPermanent int       `json:"absent_permanent"`
	ParseFailures   int       `json:"parse_failures"`
	SkippedEmpty    int       `json:"skipped_empty"`
	ErrorText       string    `json:"error_text,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// RowsProcessed returns the number of rows that went through the pipeline.
func (s RunSummary) RowsProcessed() int {
	return s.Succeeded + s.AbsentTransient + s.AbsentPermanent
}

// ColumnHandle identifies the column opened by AppendColumn for the
// duration of one commit.
type ColumnHandle int64
