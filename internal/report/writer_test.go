package report

import (
	"archive/zip"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bucktownnz/release/internal/ingest"
	"github.com/bucktownnz/release/internal/refine"
)

func sampleRun() *refine.Run {
	parse := &ingest.ParseResult{
		Epic: ingest.WorkItem{Key: "CAT-100", IssueType: "Epic", Summary: "Improve onboarding", RowNumber: 2},
		Children: []ingest.WorkItem{
			{Key: "CAT-101", IssueType: "Story", Summary: "Welcome email", ParentKey: "CAT-100", RowNumber: 3},
			{Key: "CAT-102", IssueType: "Bug", Summary: "Signup crash", ParentKey: "CAT-100", RowNumber: 4},
		},
		ExcludedRows: []ingest.ExcludedRow{
			{RowNumber: 5, Key: "CAT-103", IssueType: "Sub-task", Reason: "unsupported issue type"},
		},
		Warnings: []string{"row 6 skipped: blank issue key"},
		Stats:    ingest.Stats{TotalRows: 5, EpicRowNumber: 2, ChildrenCount: 2, ExcludedCount: 1},
	}

	tickets := []refine.TicketResult{
		{
			Ticket: parse.Children[0],
			Output: refine.TicketDoc{
				Title:   "Send welcome email on signup",
				Summary: "New users receive a welcome email within five minutes of signup.",
				AcceptanceCriteria: []refine.Criterion{
					{Given: "a new user signs up", When: "signup completes", Then: "a welcome email is queued"},
				},
				Risks:     []string{"Email provider outage"},
				TestIdeas: []string{"Sign up and inspect the queue"},
				Questions: []string{"Which email provider do we use?"},
			},
			RawResponse: "{}",
		},
		{
			Ticket: parse.Children[1],
			Output: refine.TicketDoc{
				Title:   "Fix signup crash on empty password",
				Summary: "Signup no longer crashes when the password field is empty.",
				AcceptanceCriteria: []refine.Criterion{
					{Given: "an empty password", When: "the form is submitted", Then: "a validation error is shown"},
				},
				Risks:     []string{},
				TestIdeas: []string{"Submit the form with no password"},
			},
			RawResponse:          "{}",
			TruncatedDescription: true,
		},
	}

	return &refine.Run{
		Parse:   parse,
		Tickets: tickets,
		Epic: &refine.EpicResult{
			Epic: parse.Epic,
			Output: refine.EpicDoc{
				EpicTitle: "Improve onboarding",
				Narrative: "Onboarding is the first impression users get.",
				Outcome:   "Faster activation",
				EpicAcceptanceCriteria: []refine.Criterion{
					{Given: "a new user", When: "they finish signup", Then: "they reach the dashboard"},
				},
				AmbitionAssessment: "Bold enough.",
			},
			RawResponse: "{}",
		},
		Suggestions: &refine.Suggestions{
			SuggestedTickets: []refine.SuggestedTicket{
				{Title: "Add onboarding analytics", Outcome: "Funnel drop-off is measurable"},
			},
		},
		Gap: &refine.GapAnalysis{
			ActionsByTicket: map[string][]string{"CAT-101": {"Confirm the email provider"}},
			Themes:          []string{"Provider decisions pending"},
		},
		CacheHits: map[string]int{
			refine.StageTickets: 1, refine.StageEpic: 0, refine.StageSuggestions: 0, refine.StageGap: 0,
		},
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestWriteEpicPack(t *testing.T) {
	base := t.TempDir()
	ts := time.Date(2024, 11, 5, 9, 30, 0, 0, time.UTC)

	out, err := writeEpicPack(base, sampleRun(), ts)
	if err != nil {
		t.Fatalf("writeEpicPack: %v", err)
	}

	wantDir := filepath.Join(base, "CAT-100_20241105_093000")
	if out.Dir != wantDir {
		t.Errorf("dir = %s, want %s", out.Dir, wantDir)
	}

	epic := mustRead(t, out.EpicPath)
	for _, want := range []string{"# Improve onboarding", "## Narrative", "## Outcome", "Faster activation", "_No risks highlighted._", "_None stated._"} {
		if !strings.Contains(epic, want) {
			t.Errorf("epic.md missing %q", want)
		}
	}

	stories := mustRead(t, out.StoriesPath)
	first := strings.Index(stories, "CAT-101")
	second := strings.Index(stories, "CAT-102")
	if first < 0 || second < 0 || first > second {
		t.Errorf("stories.md should list CAT-101 before CAT-102")
	}
	if !strings.Contains(stories, "**Given** a new user signs up") {
		t.Error("stories.md missing acceptance criterion rendering")
	}
	if !strings.Contains(stories, "truncated for prompting") {
		t.Error("stories.md missing truncation note for CAT-102")
	}
	if !strings.Contains(stories, "**Questions**") {
		t.Error("stories.md missing questions section for CAT-101")
	}

	actions := mustRead(t, out.ActionsPath)
	if !strings.Contains(actions, "## CAT-101") || !strings.Contains(actions, "Confirm the email provider") {
		t.Errorf("actions.md missing aggregated actions:\n%s", actions)
	}
	if !strings.Contains(actions, "## Shared themes") {
		t.Error("actions.md missing shared themes")
	}

	suggestions := mustRead(t, out.SuggestionsPath)
	if !strings.Contains(suggestions, "## 1. Add onboarding analytics") {
		t.Errorf("suggested_new_tickets.md missing suggestion:\n%s", suggestions)
	}

	index := mustRead(t, out.IndexPath)
	for _, want := range []string{
		"- **Epic:** CAT-100 · Improve onboarding",
		"- **Children refined:** 2",
		"- **Excluded rows:** 1",
		"## Excluded rows",
		"## Warnings",
		"Cache hits: tickets 1, epic 0, suggestions 0, gap 0",
		"## Traceability",
		"Child tickets: CAT-101, CAT-102",
	} {
		if !strings.Contains(index, want) {
			t.Errorf("index.md missing %q", want)
		}
	}
}

func TestWriteEpicPack_CSV(t *testing.T) {
	out, err := writeEpicPack(t.TempDir(), sampleRun(), time.Now())
	if err != nil {
		t.Fatalf("writeEpicPack: %v", err)
	}

	f, err := os.Open(out.CSVPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Issue key" || rows[0][1] != "Refined Title" || rows[0][2] != "Refined Summary" {
		t.Errorf("csv header = %v", rows[0])
	}
	if rows[1][0] != "CAT-101" || rows[2][0] != "CAT-102" {
		t.Errorf("csv order = %s, %s", rows[1][0], rows[2][0])
	}
	if rows[1][1] != "Send welcome email on signup" {
		t.Errorf("csv title = %q", rows[1][1])
	}
}

func TestWriteEpicPack_Zip(t *testing.T) {
	out, err := writeEpicPack(t.TempDir(), sampleRun(), time.Now())
	if err != nil {
		t.Fatalf("writeEpicPack: %v", err)
	}

	zr, err := zip.OpenReader(out.ZipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"epic.md", "stories.md", "actions.md", "suggested_new_tickets.md", "index.md", "refined_tickets.csv"} {
		if !names[want] {
			t.Errorf("zip missing %s", want)
		}
	}
	if names["pack.zip"] {
		t.Error("zip must not contain itself")
	}
}

func TestBuildActionsMarkdown_FallbackToRawQuestions(t *testing.T) {
	run := sampleRun()
	run.Gap = &refine.GapAnalysis{ActionsByTicket: map[string][]string{}}

	actions := buildActionsMarkdown(run)
	if !strings.Contains(actions, "## CAT-101") || !strings.Contains(actions, "Which email provider do we use?") {
		t.Errorf("empty aggregation should fall back to raw questions:\n%s", actions)
	}
}

func TestBuildActionsMarkdown_NoQuestions(t *testing.T) {
	run := sampleRun()
	run.Gap = &refine.GapAnalysis{ActionsByTicket: map[string][]string{}}
	run.Tickets[0].Output.Questions = nil

	actions := buildActionsMarkdown(run)
	if !strings.Contains(actions, "_No outstanding questions identified._") {
		t.Errorf("actions.md should state there are no questions:\n%s", actions)
	}
}

func TestBuildSuggestionsMarkdown_Empty(t *testing.T) {
	got := buildSuggestionsMarkdown(&refine.Suggestions{})
	if !strings.Contains(got, "_No additional tickets suggested._") {
		t.Errorf("empty suggestions rendering = %q", got)
	}
}

func TestWrap(t *testing.T) {
	got := wrap("one two three four five", 9)
	want := "one two\nthree\nfour five"
	if got != want {
		t.Errorf("wrap = %q, want %q", got, want)
	}
	if wrap("short", 90) != "short" {
		t.Error("short text should be unchanged")
	}
}
