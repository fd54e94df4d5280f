package refine

import (
	"fmt"
	"strings"
)

// weaselWords are vague filler terms the ticket validator rejects wherever
// they appear in user-facing fields.
var weaselWords = []string{"etc", "tbd", "asap"}

const maxSummaryChars = 500

func containsWeaselWord(value string) bool {
	lower := strings.ToLower(value)
	for _, word := range weaselWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// LintTicket validates a refined ticket document against the stage rules
// and returns the list of issues found, empty when the document is clean.
func LintTicket(doc TicketDoc) []string {
	var issues []string

	title := strings.TrimSpace(doc.Title)
	summary := strings.TrimSpace(doc.Summary)

	if title == "" {
		issues = append(issues, "Missing title")
	}
	if containsWeaselWord(doc.Title) {
		issues = append(issues, "Title contains weasel words")
	}

	if summary == "" {
		issues = append(issues, "Missing summary")
	}
	if len(doc.Summary) > maxSummaryChars {
		issues = append(issues, fmt.Sprintf("Summary exceeds %d characters", maxSummaryChars))
	}
	if containsWeaselWord(doc.Summary) {
		issues = append(issues, "Summary contains weasel words")
	}

	if len(doc.AcceptanceCriteria) == 0 {
		issues = append(issues, "Acceptance criteria missing or empty")
	}
	for i, ac := range doc.AcceptanceCriteria {
		if strings.TrimSpace(ac.Given) == "" || strings.TrimSpace(ac.When) == "" || strings.TrimSpace(ac.Then) == "" {
			issues = append(issues, fmt.Sprintf("Acceptance criterion %d missing Given/When/Then", i+1))
		}
		if containsWeaselWord(ac.Given) || containsWeaselWord(ac.When) || containsWeaselWord(ac.Then) {
			issues = append(issues, fmt.Sprintf("Acceptance criterion %d uses weasel words", i+1))
		}
	}

	if doc.Risks == nil {
		issues = append(issues, "risks must be a list")
	}
	if doc.TestIdeas == nil {
		issues = append(issues, "test_ideas must be a list")
	}

	return issues
}
