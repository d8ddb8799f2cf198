package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai_content_pipeline/generator"
)

// fakeGenerator answers from tables keyed by title and records what it saw.
type fakeGenerator struct {
	mu sync.Mutex

	topics      []generator.Topic
	topicsErr   error
	scores      map[string]float64
	draftErr    map[string]error
	expandErr   error
	sanitizeErr error
	sanitized   generator.Sanitized

	themes       []string
	imagePrompts []string

	// hooks, called without the lock
	onDiscover func(ctx context.Context)
	onDraft    func(t generator.Topic)
}

func (f *fakeGenerator) DiscoverTopics(ctx context.Context, theme string) ([]generator.Topic, error) {
	f.mu.Lock()
	f.themes = append(f.themes, theme)
	hook := f.onDiscover
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if f.topicsErr != nil {
		return nil, f.topicsErr
	}
	return f.topics, nil
}

func (f *fakeGenerator) DraftContent(_ context.Context, t generator.Topic) (generator.Draft, error) {
	if f.onDraft != nil {
		f.onDraft(t)
	}
	if err := f.draftErr[t.Title]; err != nil {
		return generator.Draft{}, err
	}
	return generator.Draft{
		Summary:    "Summary of " + t.Title,
		Goals:      [3]string{t.Title + " goal 1", t.Title + " goal 2", t.Title + " goal 3"},
		Conclusion: "Conclusion of " + t.Title,
	}, nil
}

func (f *fakeGenerator) ScoreContent(_ context.Context, a generator.Article) (float64, error) {
	if len(a.Goals) != 3 {
		return 0, errors.New("scored before drafting")
	}
	return f.scores[a.Title], nil
}

func (f *fakeGenerator) ExpandContent(_ context.Context, a generator.Article) ([]generator.ExpandedGoal, error) {
	if f.expandErr != nil {
		return nil, f.expandErr
	}
	out := make([]generator.ExpandedGoal, len(a.Goals))
	for i, g := range a.Goals {
		out[i] = generator.ExpandedGoal{Title: g, Body: "Body " + g, ImagePrompt: fmt.Sprintf("prompt-%d", i)}
	}
	return out, nil
}

func (f *fakeGenerator) GenerateImage(_ context.Context, a generator.Article, prompt string) string {
	f.mu.Lock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	f.mu.Unlock()
	if prompt == "" {
		return "img://" + a.ID
	}
	return "img://" + a.ID + "/" + prompt
}

func (f *fakeGenerator) SanitizeContent(context.Context, generator.Article) (generator.Sanitized, error) {
	if f.sanitizeErr != nil {
		return generator.Sanitized{}, f.sanitizeErr
	}
	return f.sanitized, nil
}

func topicsTitled(titles ...string) []generator.Topic {
	out := make([]generator.Topic, len(titles))
	for i, t := range titles {
		out[i] = generator.Topic{Topic: "topic " + t, Twist: "twist " + t, Title: t}
	}
	return out
}
