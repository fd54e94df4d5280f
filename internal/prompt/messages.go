// Package prompt builds the conversations sent to the generation service,
// one builder per pipeline stage. Builders are pure: the same inputs always
// produce the same message list.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/bucktownnz/release/internal/llm"
)

const ticketSystemPrompt = "You are the world's best technical product manager. " +
	"Be precise, outcome-focused, and concise. Do not invent facts; if information is missing, " +
	"list pointed questions. Acceptance Criteria must use Given/When/Then. " +
	"Tailor tone for Issue Type: Bug (repro & verification), Sub-task (inherits parent scope), " +
	"Story/Task (user-facing outcomes). Respond in UK English."

const epicSystemPrompt = "You are the world's best technical product manager. " +
	"Produce a crisp epic narrative, outcome statement, epic-level AC (Given/When/Then), key risks, " +
	"and constraints/NFRs if implied. Evaluate ambition: do the child tickets collectively deliver " +
	"a meaningful outcome? If not, recommend bolder, higher-value slices. Respond in UK English."

const missingTicketsSystemPrompt = "Identify missing work items using a fixed checklist (tech readiness, " +
	"monitoring/alerts, runbook/docs, analytics/events, rollout/feature flags, accessibility, unhappy paths, " +
	"data migration). Do not duplicate existing tickets. Output mini stories."

const gapAnalysisSystemPrompt = "Aggregate questions across tickets into a concise action list grouped by " +
	"ticket and by common theme."

// CorrectiveJSONMessage asks for a resend after an unparseable response.
const CorrectiveJSONMessage = "The previous response was not valid JSON. " +
	"Please respond with valid JSON only, following the required schema."

func jsonPayload(payload any) string {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		// Payloads are built from plain structs and maps; this cannot fail
		// for them, and a broken payload in the prompt is better than a
		// silent empty message.
		return "{}"
	}
	return string(data)
}

func wrapExample(example string) string {
	example = strings.TrimSpace(example)
	if example == "" {
		return ""
	}
	return "### EXAMPLE FORMAT START\n" + example + "\n### EXAMPLE FORMAT END"
}

// insertSquadContext places the squad block as a system message directly
// after the leading system message, so it shapes every later turn.
func insertSquadContext(messages []llm.Message, squadContext string) []llm.Message {
	if squadContext == "" {
		return messages
	}
	squadMsg := llm.Message{
		Role: llm.RoleSystem,
		Content: "Context about the squad that owns this work:\n" +
			squadContext + "\n\n" +
			"Align all outputs with this squad's mission, systems, responsibilities, " +
			"and non-functional priorities. Suggest improvements or missing work that " +
			"fit this squad, but do not invent facts not supported by the input.",
	}
	at := 0
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		at = 1
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, messages[:at]...)
	out = append(out, squadMsg)
	out = append(out, messages[at:]...)
	return out
}

func appendExample(messages []llm.Message, example string) []llm.Message {
	block := wrapExample(example)
	if block == "" {
		return messages
	}
	return append(messages, llm.Message{
		Role: llm.RoleUser,
		Content: "If an EXAMPLE FORMAT is provided, match its structure and headings exactly; " +
			"otherwise use the default template.\n" + block,
	})
}

// TicketMessages builds the conversation for refining one child ticket.
func TicketMessages(project, epicTitle string, ticketPayload any, example, squadContext string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: ticketSystemPrompt},
		{Role: llm.RoleUser, Content: jsonPayload(map[string]any{
			"project":    project,
			"epic_title": epicTitle,
			"ticket":     ticketPayload,
		})},
		{Role: llm.RoleUser, Content: "Return JSON only with keys: title, summary, acceptance_criteria " +
			"(list of objects with given/when/then), risks (list), test_ideas (list), questions " +
			"(optional list). Use concise UK English. Do not include narrative or markdown outside the JSON."},
	}
	messages = insertSquadContext(messages, squadContext)
	return appendExample(messages, example)
}

// EpicMessages builds the conversation for synthesising the epic from its
// refined children.
func EpicMessages(project string, epicPayload, childSummaries any, example, squadContext string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: epicSystemPrompt},
		{Role: llm.RoleUser, Content: jsonPayload(map[string]any{
			"project":                project,
			"epic":                   epicPayload,
			"child_ticket_summaries": childSummaries,
		})},
		{Role: llm.RoleUser, Content: "Return JSON only with keys: epic_title, narrative, outcome, " +
			"epic_acceptance_criteria (list of objects with given/when/then), risks (list), " +
			"constraints_or_nfrs (list, allow empty), ambition_assessment. " +
			"Use concise UK English. Do not add markdown outside the JSON."},
	}
	messages = insertSquadContext(messages, squadContext)
	return appendExample(messages, example)
}

// MissingTicketsMessages builds the conversation for suggesting work the
// epic is missing.
func MissingTicketsMessages(epicNarrative string, childSummaries any, squadContext string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: missingTicketsSystemPrompt},
		{Role: llm.RoleUser, Content: jsonPayload(map[string]any{
			"epic_narrative":         epicNarrative,
			"child_ticket_summaries": childSummaries,
		})},
		{Role: llm.RoleUser, Content: "Return JSON only with key suggested_tickets, which is a list of " +
			"objects with title, outcome, acceptance_criteria (list of Given/When/Then objects). " +
			"Do not include markdown outside the JSON."},
	}
	return insertSquadContext(messages, squadContext)
}

// GapAnalysisMessages builds the conversation for aggregating open questions
// across tickets.
func GapAnalysisMessages(ticketQuestions any, squadContext string) []llm.Message {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: gapAnalysisSystemPrompt},
		{Role: llm.RoleUser, Content: jsonPayload(map[string]any{"ticket_results": ticketQuestions})},
		{Role: llm.RoleUser, Content: "Return JSON only with keys actions_by_ticket (object mapping " +
			"ticket key to list of actions) and themes (list of shared themes). No markdown outside the JSON."},
	}
	return insertSquadContext(messages, squadContext)
}

// CorrectiveValidationMessage lists the validation issues the model must fix
// and asks for a full resend.
func CorrectiveValidationMessage(issues []string) string {
	var b strings.Builder
	b.WriteString("The previous JSON output failed validation for the following reasons:\n")
	for _, issue := range issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	b.WriteString("Please correct these issues and resend the full JSON response. " +
		"Remember to avoid weasel words and ensure each acceptance criterion includes Given/When/Then.")
	return b.String()
}
