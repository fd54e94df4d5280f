// Package refine implements the epic pack refinement pipeline: a bounded
// fan-out over child tickets, an epic synthesis pass, missing-ticket
// suggestions, and a gap analysis over open questions, with every stage
// memoized by content fingerprint in a durable cache.
package refine

// Criterion is one Given/When/Then acceptance criterion.
type Criterion struct {
	Given string `json:"given"`
	When  string `json:"when"`
	Then  string `json:"then"`
}

// TicketDoc is the structured output of the ticket refinement stage.
type TicketDoc struct {
	Title              string      `json:"title"`
	Summary            string      `json:"summary"`
	AcceptanceCriteria []Criterion `json:"acceptance_criteria"`
	Risks              []string    `json:"risks"`
	TestIdeas          []string    `json:"test_ideas"`
	Questions          []string    `json:"questions,omitempty"`
}

// EpicDoc is the structured output of the epic synthesis stage.
type EpicDoc struct {
	EpicTitle              string      `json:"epic_title"`
	Narrative              string      `json:"narrative"`
	Outcome                string      `json:"outcome"`
	EpicAcceptanceCriteria []Criterion `json:"epic_acceptance_criteria"`
	Risks                  []string    `json:"risks"`
	ConstraintsOrNFRs      []string    `json:"constraints_or_nfrs"`
	AmbitionAssessment     string      `json:"ambition_assessment"`
}

// SuggestedTicket is one proposed missing work item.
type SuggestedTicket struct {
	Title              string      `json:"title"`
	Outcome            string      `json:"outcome"`
	AcceptanceCriteria []Criterion `json:"acceptance_criteria"`
}

// SuggestionsDoc is the structured output of the missing-tickets stage.
type SuggestionsDoc struct {
	SuggestedTickets []SuggestedTicket `json:"suggested_tickets"`
}

// GapDoc is the structured output of the gap analysis stage.
type GapDoc struct {
	ActionsByTicket map[string][]string `json:"actions_by_ticket"`
	Themes          []string            `json:"themes"`
}
