package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bucktownnz/release/internal/llm"
	"github.com/bucktownnz/release/internal/prompt"
)

// ErrorKind distinguishes why an invocation was rejected.
type ErrorKind int

const (
	// ErrorParse means the response never yielded a parseable JSON document.
	ErrorParse ErrorKind = iota
	// ErrorValidation means the document parsed but failed the stage rules.
	ErrorValidation
)

// ResponseError is the final failure of a structured generation call, after
// the permitted corrective retry.
type ResponseError struct {
	Kind   ErrorKind
	Issues []string
}

func (e *ResponseError) Error() string {
	switch e.Kind {
	case ErrorValidation:
		return fmt.Sprintf("model output failed validation: %s", strings.Join(e.Issues, ", "))
	default:
		return "failed to parse JSON response from model"
	}
}

// invokeOptions configures one logical structured generation call.
type invokeOptions struct {
	model       string
	maxTokens   int
	temperature float64
	allowRetry  bool
}

// invokeJSON sends the conversation, extracts and validates a JSON document
// of type T, and performs at most one corrective retry across both failure
// modes (two total attempts). The returned issues are those raised on
// rejected attempts, empty when the first attempt was accepted. Completer
// errors are hard failures of the attempt and are not retried here; the
// client carries its own transport retry policy.
func invokeJSON[T any](
	ctx context.Context,
	completer llm.Completer,
	base []llm.Message,
	validate func(T) []string,
	opts invokeOptions,
) (T, string, []string, error) {
	var zero T
	var feedback []string

	attempts := 1
	if opts.allowRetry {
		attempts = 2
	}

	messages := base
	for attempt := 0; attempt < attempts; attempt++ {
		raw, err := completer.Complete(ctx, messages, llm.Options{
			Model:       opts.model,
			MaxTokens:   opts.maxTokens,
			Temperature: opts.temperature,
		})
		if err != nil {
			return zero, "", feedback, fmt.Errorf("completion call: %w", err)
		}

		doc, parseErr := parseDocument[T](raw)
		if parseErr != nil {
			feedback = append(feedback, fmt.Sprintf("Invalid JSON response: %v", parseErr))
			if attempt == 0 && opts.allowRetry {
				messages = append(append([]llm.Message{}, base...), llm.Message{
					Role:    llm.RoleUser,
					Content: prompt.CorrectiveJSONMessage,
				})
				continue
			}
			return zero, raw, feedback, &ResponseError{Kind: ErrorParse, Issues: feedback}
		}

		if validate != nil {
			if issues := validate(doc); len(issues) > 0 {
				feedback = append(feedback, issues...)
				if attempt == 0 && opts.allowRetry {
					messages = append(append([]llm.Message{}, base...), llm.Message{
						Role:    llm.RoleUser,
						Content: prompt.CorrectiveValidationMessage(issues),
					})
					continue
				}
				return zero, raw, feedback, &ResponseError{Kind: ErrorValidation, Issues: issues}
			}
		}

		return doc, raw, feedback, nil
	}

	// attempts >= 1, so every path through the loop returns.
	return zero, "", feedback, &ResponseError{Kind: ErrorParse, Issues: feedback}
}

func parseDocument[T any](raw string) (T, error) {
	var doc T
	extracted, err := extractJSON(raw)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(extracted, &doc); err != nil {
		return doc, fmt.Errorf("document does not match expected shape: %w", err)
	}
	return doc, nil
}
