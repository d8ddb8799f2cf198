package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
// 根据提示词拼出格式正确的 JSON。
type MockLLM struct{}

var (
	mockThemeRe = regexp.MustCompile(`connect to this theme: (.+)\.`)
	mockTitleRe = regexp.MustCompile(`(?m)^Title: (.+)$`)
	mockCountRe = regexp.MustCompile(`^Propose (\d+) `)
)

var mockSubjects = []struct{ topic, twist string }{
	{"transformer attention", "a dinner party where every guest listens to everyone"},
	{"reinforcement learning", "training a puppy with treats"},
	{"embeddings", "a city map where similar ideas live on the same street"},
	{"diffusion models", "restoring a fogged-up window one wipe at a time"},
	{"model evaluation", "a cooking competition with blind tasting"},
	{"retrieval-augmented generation", "an open-book exam"},
	{"AI alignment", "writing house rules for a very literal roommate"},
}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	title := "Untitled"
	if mt := mockTitleRe.FindStringSubmatch(prompt.User); len(mt) == 2 {
		title = strings.TrimSpace(mt[1])
	}

	var v any
	switch prompt.Op {
	case OpDiscoverTopics:
		count := DefaultTopicCount
		if mc := mockCountRe.FindStringSubmatch(prompt.User); len(mc) == 2 {
			fmt.Sscanf(mc[1], "%d", &count)
		}
		theme := ""
		if mt := mockThemeRe.FindStringSubmatch(prompt.User); len(mt) == 2 {
			theme = mt[1]
		}
		topics := make([]Topic, 0, count)
		for i := 0; i < count; i++ {
			s := mockSubjects[i%len(mockSubjects)]
			t := Topic{Topic: s.topic, Twist: s.twist, Title: fmt.Sprintf("What %s has to do with %s", s.topic, s.twist)}
			if theme != "" {
				t.Topic = theme + " and " + s.topic
				t.Title = fmt.Sprintf("%s meets %s: %s", theme, s.topic, s.twist)
			}
			topics = append(topics, t)
		}
		v = topicsResponse{Topics: topics}
	case OpDraftContent:
		v = draftResponse{
			Summary: fmt.Sprintf("A short tour of %q for curious readers.", title),
			Goals: []string{
				"Understand the core idea in plain words.",
				"See where it shows up in everyday products.",
				"Know the limits before trusting it.",
			},
			Conclusion: "The analogy is imperfect, but it is a good place to start.",
		}
	case OpScoreContent:
		h := fnv.New32a()
		_, _ = h.Write([]byte(title))
		v = scoreResponse{Score: float64(40 + h.Sum32()%60), Reason: "offline heuristic"}
	case OpExpandContent:
		v = expandResponse{Goals: []ExpandedGoal{
			{Title: "The core idea", Body: "Start from the analogy and strip it back to the mechanism.", ImagePrompt: "A simple diagram of the core idea"},
			{Title: "Where you meet it", Body: "Search, recommendations and assistants all rely on it.", ImagePrompt: "Everyday devices glowing softly"},
			{Title: "Know the limits", Body: "It fails in predictable ways; learn them.", ImagePrompt: "A bridge with a clearly marked edge"},
		}}
	case OpSanitize:
		v = Sanitized{}
	default:
		return "", fmt.Errorf("mock llm: unsupported operation %q", prompt.Op)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
