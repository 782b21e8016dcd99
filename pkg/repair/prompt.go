// Package repair builds follow-up prompts asking a model to correct a
// structured answer that did not match its schema.
package repair

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zen-systems/contentflow/pkg/schema"
)

// Problems lists what is wrong with an answer: the decode error when it
// held no JSON, otherwise the schema validation failures.
func Problems(decodeErr, validateErr error) []string {
	if decodeErr != nil {
		return []string{"the answer is not a JSON object: " + decodeErr.Error()}
	}
	if validateErr == nil {
		return nil
	}
	var ve *schema.ValidationError
	if !errors.As(validateErr, &ve) || len(ve.Fields) == 0 {
		return []string{validateErr.Error()}
	}
	out := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		out = append(out, fmt.Sprintf("%s: %s", f.Path, f.Reason))
	}
	return out
}

// SchemaPrompt asks the model to redo answer so that it matches s. The
// original prompt is repeated so the model keeps the task in view.
func SchemaPrompt(original, answer string, s *schema.Schema, problems []string) string {
	var sb strings.Builder

	sb.WriteString(original)
	sb.WriteString("\n\nYour previous answer did not match the required format:\n---\n")
	sb.WriteString(answer)
	sb.WriteString("\n---\n\nProblems:\n")
	for _, p := range problems {
		sb.WriteString("- " + p + "\n")
	}
	sb.WriteString("\nRespond with only a JSON object of this shape, no prose:\n")
	sb.WriteString(s.Describe())
	return sb.String()
}

// EscalationPrompt is used when the model returned the same invalid answer
// twice in a row.
func EscalationPrompt(original, answer string, s *schema.Schema, problems []string) string {
	var sb strings.Builder

	sb.WriteString("You repeated an answer that does not match the required format. Do NOT repeat it.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(original)
	sb.WriteString("\n\nProblems:\n")
	for _, p := range problems {
		sb.WriteString("- " + p + "\n")
	}
	sb.WriteString("\nRepeated answer:\n---\n")
	sb.WriteString(answer)
	sb.WriteString("\n---\n\nRespond with only a JSON object of this shape, no prose:\n")
	sb.WriteString(s.Describe())
	return sb.String()
}
