package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// JSONResult is the outcome of a structured generation: either the parsed
// value or the caller supplied fallback. FellBack distinguishes the two.
type JSONResult[T any] struct {
	Value    T
	FellBack bool
	// ParseErr is set when the provider answered but the text was not
	// valid JSON for T.
	ParseErr error
}

// StripCodeFence removes a leading ``` or ```json marker and a trailing ```
// marker from text. Text without fences is returned trimmed.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseJSON decodes text, tolerating a markdown code fence, into a value of
// type T. On any decoding failure fallback is returned unchanged with
// FellBack set. This is a degradation policy, not an error path.
func ParseJSON[T any](text string, fallback T) JSONResult[T] {
	body := StripCodeFence(text)
	if body == "" {
		return JSONResult[T]{Value: fallback, FellBack: true, ParseErr: errors.New("empty response")}
	}
	if body == "null" {
		return JSONResult[T]{Value: fallback, FellBack: true, ParseErr: errors.New("null response")}
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return JSONResult[T]{Value: fallback, FellBack: true, ParseErr: err}
	}
	return JSONResult[T]{Value: v}
}

// GenerateJSON calls GenerateContent and parses the reply as JSON. Errors
// from GenerateContent are returned as is, alongside a result holding
// fallback, so callers can still choose to serve degraded content. Parse
// failures are never errors: the result carries fallback with FellBack set.
func GenerateJSON[T any](ctx context.Context, g *Gateway, prompt, feature string, fallback T) (JSONResult[T], error) {
	text, err := g.GenerateContent(ctx, prompt, feature)
	if err != nil {
		return JSONResult[T]{Value: fallback, FellBack: true}, err
	}
	res := ParseJSON(text, fallback)
	if res.FellBack {
		g.log.WithError(res.ParseErr).WithField("feature", feature).Warn("llm response was not valid json, using fallback")
	}
	return res, nil
}
