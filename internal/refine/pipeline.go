package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/bucktownnz/release/internal/cache"
	"github.com/bucktownnz/release/internal/fingerprint"
	"github.com/bucktownnz/release/internal/ingest"
	"github.com/bucktownnz/release/internal/llm"
	"github.com/bucktownnz/release/internal/prompt"
)

// ErrAllTicketsFailed is returned when no child ticket refinement
// succeeded; the pipeline stops rather than synthesizing an epic from
// nothing.
var ErrAllTicketsFailed = errors.New("all ticket refinements failed; aborting epic run")

// Pipeline sequences the four refinement stages, consulting the stage cache
// before every generation call. State only moves forward; there is no
// backtracking between stages.
type Pipeline struct {
	store     cache.Store
	completer llm.Completer
	cfg       Config
	progress  io.Writer
}

// NewPipeline creates a Pipeline. The cache store and completer are
// injected; pass a MemoryStore and a stub completer in tests.
func NewPipeline(store cache.Store, completer llm.Completer, cfg Config) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.TruncateChars < 0 {
		cfg.TruncateChars = 0
	}
	return &Pipeline{store: store, completer: completer, cfg: cfg}
}

// SetProgress sets the writer for progress logging.
func (p *Pipeline) SetProgress(w io.Writer) {
	p.progress = w
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.progress != nil {
		fmt.Fprintf(p.progress, format+"\n", args...)
	}
}

// ticketPayload is the normalised ticket content included in prompts and
// fingerprints. Every field is always present so fingerprints are stable.
type ticketPayload struct {
	Key         string `json:"key"`
	IssueType   string `json:"issue_type"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Labels      string `json:"labels"`
	StoryPoints string `json:"story_points"`
	Priority    string `json:"priority"`
	Assignee    string `json:"assignee"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

type epicPayload struct {
	Key         string `json:"key"`
	IssueType   string `json:"issue_type"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Labels      string `json:"labels"`
	Assignee    string `json:"assignee"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

// childSummary is the short projection of a refined ticket fed into the
// epic, suggestion and gap stages.
type childSummary struct {
	Key            string `json:"key"`
	RefinedTitle   string `json:"refined_title"`
	RefinedSummary string `json:"refined_summary"`
	IssueType      string `json:"issue_type"`
}

type ticketQuestions struct {
	Key       string   `json:"key"`
	Questions []string `json:"questions"`
}

// Cached entry shapes, one per stage.

type cachedTicket struct {
	Output       TicketDoc `json:"output"`
	RawResponse  string    `json:"raw_response"`
	LintFeedback []string  `json:"lint_feedback,omitempty"`
}

type cachedEpic struct {
	Output      EpicDoc `json:"output"`
	RawResponse string  `json:"raw_response"`
}

type cachedSuggestions struct {
	SuggestedTickets []SuggestedTicket `json:"suggested_tickets"`
	RawResponse      string            `json:"raw_response"`
}

type cachedGap struct {
	ActionsByTicket map[string][]string `json:"actions_by_ticket"`
	Themes          []string            `json:"themes"`
	RawResponse     string              `json:"raw_response"`
}

// Run executes the pipeline over a parsed epic pack. squadContext is the
// optional pre-formatted squad block; empty means none. The returned Run is
// best-effort: ticket-level failures are recorded on it, gap failures
// degrade to an empty aggregation, and only epic/suggestion stage failures
// (or zero ticket successes) surface as errors — alongside whatever was
// produced before the failure.
func (p *Pipeline) Run(ctx context.Context, parse *ingest.ParseResult, squadContext string) (*Run, error) {
	run := &Run{
		Parse: parse,
		CacheHits: map[string]int{
			StageTickets:     0,
			StageEpic:        0,
			StageSuggestions: 0,
			StageGap:         0,
		},
	}

	if p.cfg.DryRun {
		p.logf("Dry run: skipping all generation calls.")
		return run, nil
	}

	epicTitleSeed := parse.Epic.Summary
	if epicTitleSeed == "" {
		epicTitleSeed = parse.Epic.Key
	}

	// Stage 1: per-ticket refinement, fanned out across the pool.
	results, failures := forEachItem(ctx, parse.Children, p.cfg.Concurrency,
		func(t ingest.WorkItem) string {
			if t.Key != "" {
				return t.Key
			}
			return fmt.Sprintf("(row %d)", t.RowNumber)
		},
		func(ctx context.Context, ticket ingest.WorkItem) (TicketResult, error) {
			return p.refineTicket(ctx, ticket, epicTitleSeed, squadContext)
		})

	for _, f := range failures {
		msg := fmt.Sprintf("%s refinement failed: %s", f.Key, f.Message)
		run.TicketErrors = append(run.TicketErrors, msg)
		p.logf("Ticket %s failed: %s", f.Key, f.Message)
	}
	if len(results) == 0 {
		return run, ErrAllTicketsFailed
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Ticket.RowNumber < results[j].Ticket.RowNumber
	})
	for _, r := range results {
		if r.CacheHit {
			run.CacheHits[StageTickets]++
		}
	}
	run.Tickets = results
	p.logf("Refined %d child tickets.", len(results))

	// Stage 2: epic synthesis from the refined children.
	epicResult, err := p.refineEpic(ctx, parse.Epic, results, squadContext, run.CacheHits)
	if err != nil {
		return run, fmt.Errorf("epic refinement: %w", err)
	}
	run.Epic = epicResult
	p.logf("Epic refinement complete.")

	// Stage 3: missing ticket suggestions.
	suggestions, err := p.suggestTickets(ctx, epicResult, results, squadContext, run.CacheHits)
	if err != nil {
		return run, fmt.Errorf("missing ticket suggestions: %w", err)
	}
	run.Suggestions = suggestions
	p.logf("Missing ticket suggestions complete.")

	// Stage 4: gap analysis. Best-effort: a failure degrades to an empty
	// aggregation instead of aborting the run.
	gap, err := p.analyzeGaps(ctx, results, squadContext, run.CacheHits)
	if err != nil {
		run.StageErrors = append(run.StageErrors, fmt.Sprintf("gap analysis failed: %v", err))
		gap = &GapAnalysis{ActionsByTicket: map[string][]string{}}
		p.logf("Gap analysis failed (%v); continuing with empty aggregation.", err)
	} else {
		p.logf("Gap analysis complete.")
	}
	run.Gap = gap

	return run, nil
}

func (p *Pipeline) refineTicket(
	ctx context.Context,
	ticket ingest.WorkItem,
	epicTitleSeed, squadContext string,
) (TicketResult, error) {
	payload, truncated := buildTicketPayload(ticket, p.cfg.TruncateChars)

	key, err := fingerprint.Hash(map[string]any{
		"version":       p.cfg.PromptVersion,
		"model":         p.cfg.Model,
		"temperature":   p.cfg.Temperature,
		"max_tokens":    p.cfg.MaxTokens,
		"project":       p.cfg.Project,
		"epic_title":    epicTitleSeed,
		"ticket":        payload,
		"example_hash":  fingerprint.HashText(p.cfg.TicketExample),
		"squad_context": fingerprint.HashText(squadContext),
	})
	if err != nil {
		return TicketResult{}, err
	}

	var cached cachedTicket
	if ok, err := p.cacheGet(ctx, StageTickets, key, &cached); err != nil {
		return TicketResult{}, err
	} else if ok {
		return TicketResult{
			Ticket:               ticket,
			Output:               cached.Output,
			RawResponse:          cached.RawResponse,
			LintFeedback:         cached.LintFeedback,
			TruncatedDescription: truncated,
			CacheHit:             true,
		}, nil
	}

	messages := prompt.TicketMessages(p.cfg.Project, epicTitleSeed, payload, p.cfg.TicketExample, squadContext)
	doc, raw, feedback, err := invokeJSON[TicketDoc](ctx, p.completer, messages, LintTicket, p.invokeOpts(true))
	if err != nil {
		return TicketResult{}, err
	}

	if err := p.cacheSet(ctx, StageTickets, key, cachedTicket{
		Output:       doc,
		RawResponse:  raw,
		LintFeedback: feedback,
	}); err != nil {
		return TicketResult{}, err
	}

	return TicketResult{
		Ticket:               ticket,
		Output:               doc,
		RawResponse:          raw,
		LintFeedback:         feedback,
		TruncatedDescription: truncated,
	}, nil
}

func (p *Pipeline) refineEpic(
	ctx context.Context,
	epic ingest.WorkItem,
	tickets []TicketResult,
	squadContext string,
	hits map[string]int,
) (*EpicResult, error) {
	payload := buildEpicPayload(epic, p.cfg.TruncateChars)
	children := childSummaries(tickets)

	key, err := fingerprint.Hash(map[string]any{
		"version":       p.cfg.PromptVersion,
		"model":         p.cfg.Model,
		"temperature":   p.cfg.Temperature,
		"max_tokens":    p.cfg.MaxTokens,
		"project":       p.cfg.Project,
		"epic":          payload,
		"children":      children,
		"example_hash":  fingerprint.HashText(p.cfg.EpicExample),
		"squad_context": fingerprint.HashText(squadContext),
	})
	if err != nil {
		return nil, err
	}

	var cached cachedEpic
	if ok, err := p.cacheGet(ctx, StageEpic, key, &cached); err != nil {
		return nil, err
	} else if ok {
		hits[StageEpic]++
		return &EpicResult{Epic: epic, Output: cached.Output, RawResponse: cached.RawResponse}, nil
	}

	messages := prompt.EpicMessages(p.cfg.Project, payload, children, p.cfg.EpicExample, squadContext)
	// Epic synthesis is advisory narrative; only JSON-shape extraction
	// applies, no content validator.
	doc, raw, _, err := invokeJSON[EpicDoc](ctx, p.completer, messages, nil, p.invokeOpts(true))
	if err != nil {
		return nil, err
	}

	if err := p.cacheSet(ctx, StageEpic, key, cachedEpic{Output: doc, RawResponse: raw}); err != nil {
		return nil, err
	}
	return &EpicResult{Epic: epic, Output: doc, RawResponse: raw}, nil
}

func (p *Pipeline) suggestTickets(
	ctx context.Context,
	epicResult *EpicResult,
	tickets []TicketResult,
	squadContext string,
	hits map[string]int,
) (*Suggestions, error) {
	children := childSummaries(tickets)

	key, err := fingerprint.Hash(map[string]any{
		"version":        p.cfg.PromptVersion,
		"model":          p.cfg.Model,
		"temperature":    p.cfg.Temperature,
		"max_tokens":     p.cfg.MaxTokens,
		"epic_narrative": epicResult.Output.Narrative,
		"children":       children,
		"squad_context":  fingerprint.HashText(squadContext),
	})
	if err != nil {
		return nil, err
	}

	var cached cachedSuggestions
	if ok, err := p.cacheGet(ctx, StageSuggestions, key, &cached); err != nil {
		return nil, err
	} else if ok {
		hits[StageSuggestions]++
		return &Suggestions{SuggestedTickets: cached.SuggestedTickets, RawResponse: cached.RawResponse}, nil
	}

	messages := prompt.MissingTicketsMessages(epicResult.Output.Narrative, children, squadContext)
	doc, raw, _, err := invokeJSON[SuggestionsDoc](ctx, p.completer, messages, nil, p.invokeOpts(true))
	if err != nil {
		return nil, err
	}

	if err := p.cacheSet(ctx, StageSuggestions, key, cachedSuggestions{
		SuggestedTickets: doc.SuggestedTickets,
		RawResponse:      raw,
	}); err != nil {
		return nil, err
	}
	return &Suggestions{SuggestedTickets: doc.SuggestedTickets, RawResponse: raw}, nil
}

func (p *Pipeline) analyzeGaps(
	ctx context.Context,
	tickets []TicketResult,
	squadContext string,
	hits map[string]int,
) (*GapAnalysis, error) {
	var withQuestions []ticketQuestions
	for _, t := range tickets {
		if len(t.Output.Questions) > 0 {
			withQuestions = append(withQuestions, ticketQuestions{
				Key:       t.Ticket.Key,
				Questions: t.Output.Questions,
			})
		}
	}
	if len(withQuestions) == 0 {
		// Nothing to aggregate; skip the call entirely.
		return &GapAnalysis{ActionsByTicket: map[string][]string{}}, nil
	}

	key, err := fingerprint.Hash(map[string]any{
		"version":       p.cfg.PromptVersion,
		"model":         p.cfg.Model,
		"temperature":   p.cfg.Temperature,
		"max_tokens":    p.cfg.MaxTokens,
		"tickets":       withQuestions,
		"squad_context": fingerprint.HashText(squadContext),
	})
	if err != nil {
		return nil, err
	}

	var cached cachedGap
	if ok, err := p.cacheGet(ctx, StageGap, key, &cached); err != nil {
		return nil, err
	} else if ok {
		hits[StageGap]++
		return &GapAnalysis{
			ActionsByTicket: cached.ActionsByTicket,
			Themes:          cached.Themes,
			RawResponse:     cached.RawResponse,
		}, nil
	}

	messages := prompt.GapAnalysisMessages(withQuestions, squadContext)
	// Exploratory aggregation gets a single attempt, no corrective retry.
	doc, raw, _, err := invokeJSON[GapDoc](ctx, p.completer, messages, nil, p.invokeOpts(false))
	if err != nil {
		return nil, err
	}
	if doc.ActionsByTicket == nil {
		doc.ActionsByTicket = map[string][]string{}
	}

	if err := p.cacheSet(ctx, StageGap, key, cachedGap{
		ActionsByTicket: doc.ActionsByTicket,
		Themes:          doc.Themes,
		RawResponse:     raw,
	}); err != nil {
		return nil, err
	}
	return &GapAnalysis{ActionsByTicket: doc.ActionsByTicket, Themes: doc.Themes, RawResponse: raw}, nil
}

func (p *Pipeline) invokeOpts(allowRetry bool) invokeOptions {
	return invokeOptions{
		model:       p.cfg.Model,
		maxTokens:   p.cfg.MaxTokens,
		temperature: p.cfg.Temperature,
		allowRetry:  allowRetry,
	}
}

func (p *Pipeline) cacheGet(ctx context.Context, stage, key string, out any) (bool, error) {
	data, ok, err := p.store.Get(ctx, stage, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", stage, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A malformed entry is treated as a miss; it will be regenerated
		// and overwritten.
		return false, nil
	}
	return true, nil
}

func (p *Pipeline) cacheSet(ctx context.Context, stage, key string, entry any) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := p.store.Set(ctx, stage, key, data); err != nil {
		return fmt.Errorf("cache set %s: %w", stage, err)
	}
	return nil
}

// truncateText caps text at limit characters, appending a note when it was
// cut. A limit of zero disables truncation.
func truncateText(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	truncated := strings.TrimRight(string(runes[:limit]), " \t\n")
	return fmt.Sprintf("%s\n\n[Description truncated after %d characters]", truncated, limit), true
}

func buildTicketPayload(t ingest.WorkItem, truncate int) (ticketPayload, bool) {
	description, truncated := truncateText(t.Description, truncate)
	return ticketPayload{
		Key:         t.Key,
		IssueType:   t.IssueType,
		Summary:     t.Summary,
		Description: description,
		Status:      t.Status,
		Labels:      t.Labels,
		StoryPoints: t.StoryPoints,
		Priority:    t.Priority,
		Assignee:    t.Assignee,
		Created:     t.Created,
		Updated:     t.Updated,
	}, truncated
}

func buildEpicPayload(e ingest.WorkItem, truncate int) epicPayload {
	description, _ := truncateText(e.Description, truncate)
	return epicPayload{
		Key:         e.Key,
		IssueType:   e.IssueType,
		Summary:     e.Summary,
		Description: description,
		Status:      e.Status,
		Labels:      e.Labels,
		Assignee:    e.Assignee,
		Created:     e.Created,
		Updated:     e.Updated,
	}
}

func childSummaries(tickets []TicketResult) []childSummary {
	summaries := make([]childSummary, 0, len(tickets))
	for _, t := range tickets {
		summaries = append(summaries, childSummary{
			Key:            t.Ticket.Key,
			RefinedTitle:   t.Output.Title,
			RefinedSummary: t.Output.Summary,
			IssueType:      t.Ticket.IssueType,
		})
	}
	return summaries
}
