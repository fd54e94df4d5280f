package refine

import "github.com/bucktownnz/release/internal/ingest"

// Stage identifiers, used as cache namespaces and counter keys.
const (
	StageTickets     = "tickets"
	StageEpic        = "epic"
	StageSuggestions = "suggestions"
	StageGap         = "gap"
)

// Config holds the run-level parameters of one pipeline execution.
type Config struct {
	Project       string
	Model         string
	Temperature   float64
	MaxTokens     int
	Concurrency   int
	PromptVersion string
	// TruncateChars caps ticket/epic descriptions before prompting;
	// zero disables truncation.
	TruncateChars int
	// TicketExample and EpicExample are optional style exemplar texts.
	TicketExample string
	EpicExample   string
	// DryRun skips all generation calls and returns an empty run.
	DryRun bool
}

// TicketResult is the refined output for one child ticket.
type TicketResult struct {
	Ticket               ingest.WorkItem
	Output               TicketDoc
	RawResponse          string
	LintFeedback         []string
	TruncatedDescription bool
	// CacheHit marks a result served from the stage cache. Workers record
	// it here instead of touching shared state; the controller tallies
	// after the fan-out joins.
	CacheHit bool
}

// EpicResult is the synthesized epic output.
type EpicResult struct {
	Epic        ingest.WorkItem
	Output      EpicDoc
	RawResponse string
}

// Suggestions holds proposed missing tickets.
type Suggestions struct {
	SuggestedTickets []SuggestedTicket
	RawResponse      string
}

// GapAnalysis holds the aggregated open questions.
type GapAnalysis struct {
	ActionsByTicket map[string][]string
	Themes          []string
	RawResponse     string
}

// Run aggregates one pipeline execution. It is assembled by the controller
// and handed to the writer as a read-only view.
type Run struct {
	Parse       *ingest.ParseResult
	Tickets     []TicketResult
	Epic        *EpicResult
	Suggestions *Suggestions
	Gap         *GapAnalysis
	// CacheHits counts cache hits per stage.
	CacheHits map[string]int
	// TicketErrors lists per-ticket failures; the run proceeds without them.
	TicketErrors []string
	// StageErrors lists best-effort stages that failed and were degraded
	// rather than aborting the run.
	StageErrors []string
}
