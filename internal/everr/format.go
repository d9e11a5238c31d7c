package everr

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON-serializable error envelope of spec §6: every
// failure carries a code, message, optional source position, optional
// suggestion, and optional original filter text.
type Envelope struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Position   *Position         `json:"position,omitempty"`
	FilterText string            `json:"filter_text,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// ToEnvelope converts err into the wire envelope, wrapping plain errors
// as CodeInvalidExpression so callers always get a structured shape.
func ToEnvelope(err error) Envelope {
	if err == nil {
		return Envelope{}
	}
	e, ok := err.(*Error)
	if !ok {
		e = New(CodeInvalidExpression, err.Error(), err)
	}

	env := Envelope{
		Code:       e.Code,
		Message:    e.Message,
		Category:   string(e.Category),
		Severity:   string(e.Severity),
		Details:    e.Details,
		Suggestion: e.Suggestion,
		FilterText: e.FilterText,
		Retryable:  e.Retryable,
	}
	if e.Position != (Position{}) {
		p := e.Position
		env.Position = &p
	}
	if e.Cause != nil {
		env.Cause = e.Cause.Error()
	}
	return env
}

// FormatJSON renders the error envelope as JSON, for host bindings that
// cross a serialization boundary (spec §6).
func FormatJSON(err error) ([]byte, error) {
	return json.Marshal(ToEnvelope(err))
}

// FormatForLog renders key/value attributes suitable for slog.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return map[string]any{"error": err.Error()}
	}
	out := map[string]any{
		"error_code": e.Code,
		"message":    e.Message,
		"category":   string(e.Category),
		"severity":   string(e.Severity),
		"retryable":  e.Retryable,
	}
	if e.Cause != nil {
		out["cause"] = e.Cause.Error()
	}
	if e.Suggestion != "" {
		out["suggestion"] = e.Suggestion
	}
	if e.FilterText != "" {
		out["filter_text"] = e.FilterText
	}
	for k, v := range e.Details {
		out["detail_"+k] = v
	}
	return out
}

// String implements a terse human form, used by the bench CLI.
func (e *Error) String() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (suggestion: %s)", e.Code, e.Message, e.Suggestion)
}
