package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// DecodeJSON unmarshals a model reply into target. Replies wrapped in code
// fences or surrounded by prose are reduced to their outermost JSON value first.
func DecodeJSON(raw string, target any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return errors.New("model returned empty response")
	}
	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}
	extracted := extractJSON(trimmed)
	if extracted == "" || extracted == trimmed {
		return fmt.Errorf("%w (response was: %.200s)", directErr, trimmed)
	}
	if err := json.Unmarshal([]byte(extracted), target); err != nil {
		return fmt.Errorf("%w (response was: %.200s)", err, extracted)
	}
	return nil
}

func extractJSON(text string) string {
	if m := fenceRe.FindStringSubmatch(text); len(m) == 2 {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return ""
	}
	if text[0] == '{' || text[0] == '[' {
		return text
	}
	obj := strings.Index(text, "{")
	arr := strings.Index(text, "[")
	if obj >= 0 && (arr < 0 || obj < arr) {
		if end := strings.LastIndex(text, "}"); end > obj {
			return text[obj : end+1]
		}
	}
	if arr >= 0 {
		if end := strings.LastIndex(text, "]"); end > arr {
			return text[arr : end+1]
		}
	}
	return ""
}

type topicsResponse struct {
	Topics []Topic `json:"topics"`
}

// ParseTopics reads the topic list, tolerating a bare array, and keeps at most limit entries.
func ParseTopics(raw string, limit int) ([]Topic, error) {
	var topics []Topic
	var wrapped topicsResponse
	if err := DecodeJSON(raw, &wrapped); err == nil && len(wrapped.Topics) > 0 {
		topics = wrapped.Topics
	} else if err := DecodeJSON(raw, &topics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	out := make([]Topic, 0, len(topics))
	for _, t := range topics {
		t.Topic = strings.TrimSpace(t.Topic)
		t.Twist = strings.TrimSpace(t.Twist)
		t.Title = strings.TrimSpace(t.Title)
		if t.Title == "" {
			t.Title = t.Topic
		}
		if t.Title == "" {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("parse topics: no usable topics in response")
	}
	return out, nil
}

type draftResponse struct {
	Summary    string   `json:"summary"`
	Goals      []string `json:"goals"`
	Conclusion string   `json:"conclusion"`
}

// ParseDraft 解析首稿，要求恰好三个非空要点。
func ParseDraft(raw string) (Draft, error) {
	var resp draftResponse
	if err := DecodeJSON(raw, &resp); err != nil {
		return Draft{}, fmt.Errorf("parse draft: %w", err)
	}
	goals := filterEmpty(resp.Goals)
	if len(goals) != 3 {
		return Draft{}, fmt.Errorf("parse draft: expected 3 goals, got %d", len(goals))
	}
	d := Draft{
		Summary:    strings.TrimSpace(resp.Summary),
		Conclusion: strings.TrimSpace(resp.Conclusion),
	}
	copy(d.Goals[:], goals)
	if d.Summary == "" {
		return Draft{}, errors.New("parse draft: summary is empty")
	}
	return d, nil
}

type scoreResponse struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ParseScore 解析分数并限制在 [0, 100]。
func ParseScore(raw string) (float64, error) {
	var resp scoreResponse
	if err := DecodeJSON(raw, &resp); err != nil {
		return 0, fmt.Errorf("parse score: %w", err)
	}
	if math.IsNaN(resp.Score) {
		return 0, errors.New("parse score: score is NaN")
	}
	return math.Max(0, math.Min(100, resp.Score)), nil
}

type expandResponse struct {
	Goals []ExpandedGoal `json:"goals"`
}

// ParseExpansion reads the expanded goals. Entries without a body are dropped.
func ParseExpansion(raw string) ([]ExpandedGoal, error) {
	var resp expandResponse
	if err := DecodeJSON(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse expansion: %w", err)
	}
	out := make([]ExpandedGoal, 0, len(resp.Goals))
	for _, g := range resp.Goals {
		g.Title = strings.TrimSpace(g.Title)
		g.Body = strings.TrimSpace(g.Body)
		g.ImagePrompt = strings.TrimSpace(g.ImagePrompt)
		g.Image = ""
		if g.Body == "" {
			continue
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, errors.New("parse expansion: no sections in response")
	}
	return out, nil
}

// ParseSanitized reads the sanitization overrides.
func ParseSanitized(raw string) (Sanitized, error) {
	var resp Sanitized
	if err := DecodeJSON(raw, &resp); err != nil {
		return Sanitized{}, fmt.Errorf("parse sanitized: %w", err)
	}
	resp.Title = strings.TrimSpace(resp.Title)
	resp.Summary = strings.TrimSpace(resp.Summary)
	resp.Conclusion = strings.TrimSpace(resp.Conclusion)
	return resp, nil
}

func filterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
