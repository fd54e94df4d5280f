// Package ingest parses Jira CSV exports describing one epic and its child
// tickets. Column names are resolved case-insensitively through alias lists,
// with explicit per-column overrides taking precedence.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

var requiredColumnAliases = map[string][]string{
	"issue_key":   {"issue key", "key"},
	"issue_type":  {"issue type", "type"},
	"summary":     {"summary", "issue summary", "title"},
	"description": {"description", "issue description", "details"},
	"parent_key":  {"parent key", "parent"},
}

var optionalColumnAliases = map[string][]string{
	"status":       {"status"},
	"labels":       {"labels", "components", "labels/components"},
	"story_points": {"story points", "story points estimate", "story point estimate", "points"},
	"priority":     {"priority"},
	"assignee":     {"assignee", "owner"},
	"created":      {"created", "created date"},
	"updated":      {"updated", "updated date", "last updated"},
}

// columnKeys lists every resolvable column in a stable order.
var columnKeys = []string{
	"issue_key", "issue_type", "summary", "description", "parent_key",
	"status", "labels", "story_points", "priority", "assignee", "created", "updated",
}

// ColumnNames returns the canonical column names accepted as override keys.
func ColumnNames() []string {
	names := make([]string, len(columnKeys))
	copy(names, columnKeys)
	return names
}

// KnownColumn reports whether name is a canonical column name.
func KnownColumn(name string) bool {
	for _, k := range columnKeys {
		if k == name {
			return true
		}
	}
	return false
}

// WorkItem is one normalised row of the export. Items are created here and
// never mutated afterwards.
type WorkItem struct {
	Key         string `json:"key"`
	IssueType   string `json:"issue_type"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	ParentKey   string `json:"parent_key,omitempty"`
	Status      string `json:"status,omitempty"`
	Labels      string `json:"labels,omitempty"`
	StoryPoints string `json:"story_points,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Created     string `json:"created,omitempty"`
	Updated     string `json:"updated,omitempty"`
	RowNumber   int    `json:"-"`
}

// ExcludedRow records a row dropped during validation, with the reason.
type ExcludedRow struct {
	RowNumber int
	Key       string
	IssueType string
	Reason    string
}

// Stats summarises a parse.
type Stats struct {
	TotalRows     int
	EpicRowNumber int
	ChildrenCount int
	ExcludedCount int
}

// ParseResult is the validated epic pack: the single epic row, its child
// tickets in file order, and everything that was skipped along the way.
type ParseResult struct {
	Epic            WorkItem
	Children        []WorkItem
	ExcludedRows    []ExcludedRow
	Warnings        []string
	Stats           Stats
	DetectedColumns map[string]string
}

// ValidationError reports a structurally invalid export (missing columns,
// zero or multiple epics, no valid children).
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ParseFile reads and parses the CSV at path.
func ParseFile(path string, overrides map[string]string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, overrides)
}

// Parse reads a CSV export from r and validates it into a ParseResult.
// overrides maps column keys (e.g. "summary") to exact header names.
func Parse(r io.Reader, overrides map[string]string) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, validationErrorf("CSV file has no headers")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV headers: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}

	headerMap := make(map[string]string, len(headers))
	for _, h := range headers {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = h
	}
	headerIndex := make(map[string]int, len(headers))
	for i, h := range headers {
		headerIndex[h] = i
	}

	columnMap := make(map[string]string)
	var missingRequired []string
	for key, aliases := range requiredColumnAliases {
		name, err := resolveColumn(headerMap, aliases, overrides[key])
		if err != nil {
			return nil, err
		}
		if name == "" {
			missingRequired = append(missingRequired, strings.ReplaceAll(key, "_", " "))
		}
		columnMap[key] = name
	}
	if len(missingRequired) > 0 {
		return nil, validationErrorf(
			"missing required columns: %s. Available columns: %s",
			strings.Join(missingRequired, ", "), strings.Join(headers, ", "))
	}
	for key, aliases := range optionalColumnAliases {
		name, err := resolveColumn(headerMap, aliases, overrides[key])
		if err != nil {
			return nil, err
		}
		columnMap[key] = name
	}

	var (
		children  []WorkItem
		epicRows  []WorkItem
		excluded  []ExcludedRow
		warnings  []string
		totalRows int
	)

	rowNumber := 1 // header row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		rowNumber++
		totalRows++

		item := buildWorkItem(record, rowNumber, columnMap, headerIndex)

		if item.Summary == "" && item.Description == "" {
			warnings = append(warnings, fmt.Sprintf("Row %d: Empty summary and description; skipped.", rowNumber))
			continue
		}
		if item.IssueType == "" {
			excluded = append(excluded, ExcludedRow{
				RowNumber: rowNumber,
				Key:       item.Key,
				Reason:    "Missing Issue Type",
			})
			continue
		}

		if strings.EqualFold(item.IssueType, "epic") {
			epicRows = append(epicRows, item)
		} else {
			children = append(children, item)
		}
	}

	if len(epicRows) == 0 {
		return nil, validationErrorf("no Epic row found in CSV")
	}
	if len(epicRows) > 1 {
		keys := make([]string, 0, len(epicRows))
		for _, e := range epicRows {
			if e.Key != "" {
				keys = append(keys, e.Key)
			} else {
				keys = append(keys, fmt.Sprintf("(row %d)", e.RowNumber))
			}
		}
		return nil, validationErrorf("multiple epic rows found: %s. Expected exactly one", strings.Join(keys, ", "))
	}

	epic := epicRows[0]
	if epic.Key == "" {
		return nil, validationErrorf("epic row missing Issue key; cannot validate children")
	}

	var validChildren []WorkItem
	for _, item := range children {
		switch {
		case item.ParentKey == "":
			excluded = append(excluded, ExcludedRow{
				RowNumber: item.RowNumber,
				Key:       item.Key,
				IssueType: item.IssueType,
				Reason:    "Missing Parent key",
			})
		case item.ParentKey != epic.Key:
			excluded = append(excluded, ExcludedRow{
				RowNumber: item.RowNumber,
				Key:       item.Key,
				IssueType: item.IssueType,
				Reason:    fmt.Sprintf("Parent key '%s' does not match epic '%s'", item.ParentKey, epic.Key),
			})
		default:
			validChildren = append(validChildren, item)
		}
	}

	if len(validChildren) == 0 {
		return nil, validationErrorf("no valid child tickets found for the epic")
	}

	detected := make(map[string]string, len(columnKeys))
	for _, key := range columnKeys {
		detected[key] = columnMap[key]
	}

	return &ParseResult{
		Epic:         epic,
		Children:     validChildren,
		ExcludedRows: excluded,
		Warnings:     warnings,
		Stats: Stats{
			TotalRows:     totalRows,
			EpicRowNumber: epic.RowNumber,
			ChildrenCount: len(validChildren),
			ExcludedCount: len(excluded),
		},
		DetectedColumns: detected,
	}, nil
}

// resolveColumn picks the header name for a column key, preferring the
// override. An override naming a column the file does not have is an error;
// an unmatched alias list is not.
func resolveColumn(headerMap map[string]string, aliases []string, override string) (string, error) {
	if override != "" {
		if name, ok := headerMap[strings.ToLower(strings.TrimSpace(override))]; ok {
			return name, nil
		}
		return "", validationErrorf("override column '%s' not found in CSV headers", override)
	}
	for _, alias := range aliases {
		if name, ok := headerMap[alias]; ok {
			return name, nil
		}
	}
	return "", nil
}

func buildWorkItem(record []string, rowNumber int, columnMap map[string]string, headerIndex map[string]int) WorkItem {
	get := func(colKey string) string {
		name := columnMap[colKey]
		if name == "" {
			return ""
		}
		idx, ok := headerIndex[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	labels := get("labels")
	if labels != "" {
		parts := strings.Split(labels, ",")
		kept := parts[:0]
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				kept = append(kept, trimmed)
			}
		}
		labels = strings.Join(kept, ", ")
	}

	return WorkItem{
		Key:         get("issue_key"),
		IssueType:   get("issue_type"),
		Summary:     get("summary"),
		Description: get("description"),
		ParentKey:   get("parent_key"),
		Status:      get("status"),
		Labels:      labels,
		StoryPoints: get("story_points"),
		Priority:    get("priority"),
		Assignee:    get("assignee"),
		Created:     get("created"),
		Updated:     get("updated"),
		RowNumber:   rowNumber,
	}
}
