// Package report renders a pipeline run into the epic pack artefacts:
// markdown documents, a refined-tickets CSV and a zip of the whole pack.
package report

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bucktownnz/release/internal/refine"
)

// Outputs records where the pack artefacts were written.
type Outputs struct {
	Dir             string
	EpicPath        string
	StoriesPath     string
	ActionsPath     string
	SuggestionsPath string
	IndexPath       string
	CSVPath         string
	ZipPath         string
}

// WriteEpicPack writes all artefacts for a completed run under
// baseDir/<EPICKEY>_<timestamp>/ and zips the directory into pack.zip.
func WriteEpicPack(baseDir string, run *refine.Run) (*Outputs, error) {
	return writeEpicPack(baseDir, run, time.Now())
}

func writeEpicPack(baseDir string, run *refine.Run, ts time.Time) (*Outputs, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("%s_%s", safeKey(run.Parse.Epic.Key), ts.Format("20060102_150405")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	out := &Outputs{
		Dir:             dir,
		EpicPath:        filepath.Join(dir, "epic.md"),
		StoriesPath:     filepath.Join(dir, "stories.md"),
		ActionsPath:     filepath.Join(dir, "actions.md"),
		SuggestionsPath: filepath.Join(dir, "suggested_new_tickets.md"),
		IndexPath:       filepath.Join(dir, "index.md"),
		CSVPath:         filepath.Join(dir, "refined_tickets.csv"),
		ZipPath:         filepath.Join(dir, "pack.zip"),
	}

	files := []struct {
		path    string
		content string
	}{
		{out.EpicPath, buildEpicMarkdown(run)},
		{out.StoriesPath, buildStoriesMarkdown(run.Tickets)},
		{out.ActionsPath, buildActionsMarkdown(run)},
		{out.SuggestionsPath, buildSuggestionsMarkdown(run.Suggestions)},
		{out.IndexPath, buildIndexMarkdown(run, dir, ts)},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", filepath.Base(f.path), err)
		}
	}

	if err := writeRefinedCSV(out.CSVPath, run.Tickets); err != nil {
		return nil, err
	}
	if err := zipDirectory(dir, out.ZipPath); err != nil {
		return nil, err
	}
	return out, nil
}

func safeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	return strings.ReplaceAll(key, " ", "_")
}

// formatCriteria renders Given/When/Then bullets, skipping entries that are
// entirely blank.
func formatCriteria(criteria []refine.Criterion) string {
	var lines []string
	for _, c := range criteria {
		given := strings.TrimSpace(c.Given)
		when := strings.TrimSpace(c.When)
		then := strings.TrimSpace(c.Then)
		if given == "" && when == "" && then == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- **Given** %s\n  **When** %s\n  **Then** %s", given, when, then))
	}
	if len(lines) == 0 {
		return "_No acceptance criteria provided._"
	}
	return strings.Join(lines, "\n")
}

func formatList(values []string, emptyMessage string) string {
	var items []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			items = append(items, "- "+v)
		}
	}
	if len(items) == 0 {
		return emptyMessage
	}
	return strings.Join(items, "\n")
}

// wrap reflows text to the given width, preserving paragraph breaks.
func wrap(text string, width int) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	for i, p := range paragraphs {
		words := strings.Fields(p)
		if len(words) == 0 {
			continue
		}
		var b strings.Builder
		lineLen := 0
		for _, w := range words {
			if lineLen > 0 && lineLen+1+len(w) > width {
				b.WriteByte('\n')
				lineLen = 0
			} else if lineLen > 0 {
				b.WriteByte(' ')
				lineLen++
			}
			b.WriteString(w)
			lineLen += len(w)
		}
		paragraphs[i] = b.String()
	}
	return strings.Join(paragraphs, "\n\n")
}

func buildEpicMarkdown(run *refine.Run) string {
	output := run.Epic.Output
	title := output.EpicTitle
	if title == "" {
		title = run.Epic.Epic.Summary
	}
	if title == "" {
		title = run.Epic.Epic.Key
	}

	parts := []string{
		"# " + title,
		"",
		"## Narrative",
		wrap(output.Narrative, 100),
		"",
		"## Outcome",
		wrap(output.Outcome, 100),
		"",
		"## Acceptance criteria",
		formatCriteria(output.EpicAcceptanceCriteria),
		"",
		"## Risks",
		formatList(output.Risks, "_No risks highlighted._"),
		"",
		"## Constraints / NFRs",
		formatList(output.ConstraintsOrNFRs, "_None stated._"),
		"",
		"## Ambition assessment",
		wrap(output.AmbitionAssessment, 100),
	}
	return strings.Join(parts, "\n") + "\n"
}

func buildTicketSection(result refine.TicketResult) string {
	title := result.Output.Title
	if title == "" {
		title = result.Ticket.Summary
	}
	if title == "" {
		title = "Untitled ticket"
	}
	issueType := result.Ticket.IssueType
	if issueType == "" {
		issueType = "Unknown"
	}

	parts := []string{
		fmt.Sprintf("### %s · %s", result.Ticket.Key, title),
		"",
		fmt.Sprintf("**Issue type:** %s", issueType),
		"",
		"**Summary**",
		wrap(result.Output.Summary, 90),
		"",
		"**Acceptance criteria**",
		formatCriteria(result.Output.AcceptanceCriteria),
		"",
		"**Risks**",
		formatList(result.Output.Risks, "_No risks identified._"),
		"",
		"**Test ideas**",
		formatList(result.Output.TestIdeas, "_No test ideas provided._"),
	}

	if len(result.Output.Questions) > 0 {
		parts = append(parts, "", "**Questions**", formatList(result.Output.Questions, "_No questions raised._"))
	}
	if result.TruncatedDescription {
		parts = append(parts, "", "> _Original description truncated for prompting due to length._")
	}
	if len(result.LintFeedback) > 0 {
		parts = append(parts, "", "> _Model output required correction:_", formatList(result.LintFeedback, ""))
	}
	return strings.Join(parts, "\n")
}

func buildStoriesMarkdown(tickets []refine.TicketResult) string {
	parts := []string{"# Refined Tickets", ""}
	for _, t := range tickets {
		parts = append(parts, buildTicketSection(t), "")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

func buildActionsMarkdown(run *refine.Run) string {
	parts := []string{"# Actions and Open Questions", ""}

	var actions map[string][]string
	var themes []string
	if run.Gap != nil {
		actions = run.Gap.ActionsByTicket
		themes = run.Gap.Themes
	}
	// When the aggregation is missing or empty, fall back to the raw
	// per-ticket questions so nothing asked is lost.
	if len(actions) == 0 {
		actions = map[string][]string{}
		for _, t := range run.Tickets {
			if len(t.Output.Questions) > 0 {
				actions[t.Ticket.Key] = t.Output.Questions
			}
		}
	}

	if len(actions) == 0 {
		parts = append(parts, "_No outstanding questions identified._")
	} else {
		keys := make([]string, 0, len(actions))
		for k := range actions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, "## "+k, formatList(actions[k], "_No actions recorded._"), "")
		}
	}

	if len(themes) > 0 {
		parts = append(parts, "## Shared themes", formatList(themes, "_No shared themes._"))
	}
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

func buildSuggestionsMarkdown(suggestions *refine.Suggestions) string {
	parts := []string{"# Suggested New Tickets", ""}
	if suggestions == nil || len(suggestions.SuggestedTickets) == 0 {
		parts = append(parts, "_No additional tickets suggested._")
		return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
	}

	for i, s := range suggestions.SuggestedTickets {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		outcome := strings.TrimSpace(s.Outcome)
		if outcome == "" {
			outcome = "_Outcome not provided._"
		}
		parts = append(parts,
			fmt.Sprintf("## %d. %s", i+1, title),
			"",
			"**Outcome**",
			outcome,
			"",
			"**Acceptance criteria**",
			formatCriteria(s.AcceptanceCriteria),
			"",
		)
	}
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

func buildIndexMarkdown(run *refine.Run, dir string, ts time.Time) string {
	parse := run.Parse
	epicSummary := parse.Epic.Summary
	if epicSummary == "" {
		epicSummary = "(no summary)"
	}

	childKeys := make([]string, 0, len(run.Tickets))
	for _, t := range run.Tickets {
		key := t.Ticket.Key
		if key == "" {
			key = "(unknown)"
		}
		childKeys = append(childKeys, key)
	}

	parts := []string{
		"# Epic Pack Summary",
		"",
		fmt.Sprintf("- **Epic:** %s · %s", parse.Epic.Key, epicSummary),
		fmt.Sprintf("- **Children refined:** %d", len(run.Tickets)),
		fmt.Sprintf("- **Excluded rows:** %d", len(parse.ExcludedRows)),
		fmt.Sprintf("- **Warnings:** %d", len(parse.Warnings)),
		fmt.Sprintf("- **Ticket errors:** %d", len(run.TicketErrors)),
		"",
		"## Stats",
		fmt.Sprintf("- Total CSV rows: %d", parse.Stats.TotalRows),
		fmt.Sprintf("- Epic row number: %d", parse.Stats.EpicRowNumber),
		fmt.Sprintf("- Cache hits: tickets %d, epic %d, suggestions %d, gap %d",
			run.CacheHits[refine.StageTickets], run.CacheHits[refine.StageEpic],
			run.CacheHits[refine.StageSuggestions], run.CacheHits[refine.StageGap]),
		"",
	}

	if len(parse.ExcludedRows) > 0 {
		parts = append(parts, "## Excluded rows")
		for _, ex := range parse.ExcludedRows {
			key := ex.Key
			if key == "" {
				key = "(no key)"
			}
			issueType := ex.IssueType
			if issueType == "" {
				issueType = "Unknown"
			}
			parts = append(parts, fmt.Sprintf("- Row %d: %s (%s) – %s", ex.RowNumber, key, issueType, ex.Reason))
		}
		parts = append(parts, "")
	}

	if len(parse.Warnings) > 0 {
		parts = append(parts, "## Warnings")
		for _, w := range parse.Warnings {
			parts = append(parts, "- "+w)
		}
		parts = append(parts, "")
	}

	if len(run.TicketErrors) > 0 {
		parts = append(parts, "## Ticket refinement errors")
		for _, e := range run.TicketErrors {
			parts = append(parts, "- "+e)
		}
		parts = append(parts, "")
	}
	if len(run.StageErrors) > 0 {
		parts = append(parts, "## Stage errors")
		for _, e := range run.StageErrors {
			parts = append(parts, "- "+e)
		}
		parts = append(parts, "")
	}

	children := "None"
	if len(childKeys) > 0 {
		children = strings.Join(childKeys, ", ")
	}
	parts = append(parts,
		"## Traceability",
		fmt.Sprintf("- Output directory: `%s`", dir),
		fmt.Sprintf("- Generated: %s", ts.Format("2006-01-02T15:04:05")),
		fmt.Sprintf("- Child tickets: %s", children),
	)
	return strings.TrimSpace(strings.Join(parts, "\n")) + "\n"
}

func writeRefinedCSV(path string, tickets []refine.TicketResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Issue key", "Refined Title", "Refined Summary"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range tickets {
		if err := w.Write([]string{t.Ticket.Key, t.Output.Title, t.Output.Summary}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

// zipDirectory archives every file under dir into zipPath, excluding the
// archive itself.
func zipDirectory(dir, zipPath string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create zip: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path == zipPath {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("archive pack: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return f.Close()
}
