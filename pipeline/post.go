package pipeline

import (
	"encoding/json"

	"github.com/google/uuid"

	"ai_content_pipeline/generator"
)

// Status tracks a single post's own progress.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Stage is the lifecycle stage a post has reached, derived from which parts are set.
type Stage string

const (
	StageTopic     Stage = "topic"
	StageDrafted   Stage = "drafted"
	StageScored    Stage = "scored"
	StageFinalized Stage = "finalized"
)

// Post is one candidate article. The optional parts are grouped so that a
// post can only be in a valid stage: Draft carries exactly three goals, Score
// is set only after scoring and Expanded only by finalize.
type Post struct {
	ID       string                   `json:"id"`
	Topic    string                   `json:"topic"`
	Twist    string                   `json:"twist"`
	Title    string                   `json:"title"`
	Status   Status                   `json:"status"`
	Draft    *generator.Draft         `json:"draft,omitempty"`
	Score    *float64                 `json:"score,omitempty"`
	Image    string                   `json:"image,omitempty"`
	Expanded []generator.ExpandedGoal `json:"expanded,omitempty"`
}

func newPost(t generator.Topic) Post {
	return Post{
		ID:     uuid.NewString(),
		Topic:  t.Topic,
		Twist:  t.Twist,
		Title:  t.Title,
		Status: StatusPending,
	}
}

// Stage reports how far the post has progressed.
func (p Post) Stage() Stage {
	switch {
	case len(p.Expanded) > 0:
		return StageFinalized
	case p.Score != nil:
		return StageScored
	case p.Draft != nil:
		return StageDrafted
	default:
		return StageTopic
	}
}

// Goals returns the takeaways, or nil before drafting.
func (p Post) Goals() []string {
	if p.Draft == nil {
		return nil
	}
	return append([]string(nil), p.Draft.Goals[:]...)
}

func (p Post) topic() generator.Topic {
	return generator.Topic{Topic: p.Topic, Twist: p.Twist, Title: p.Title}
}

// Article is the view of the post handed to the generation client.
func (p Post) Article() generator.Article {
	a := generator.Article{
		ID:       p.ID,
		Topic:    p.Topic,
		Twist:    p.Twist,
		Title:    p.Title,
		Goals:    p.Goals(),
		Expanded: append([]generator.ExpandedGoal(nil), p.Expanded...),
	}
	if p.Draft != nil {
		a.Summary = p.Draft.Summary
		a.Conclusion = p.Draft.Conclusion
	}
	return a
}

// clone returns a copy that shares nothing mutable with p.
func (p Post) clone() Post {
	out := p
	if p.Draft != nil {
		d := *p.Draft
		out.Draft = &d
	}
	if p.Score != nil {
		s := *p.Score
		out.Score = &s
	}
	if p.Expanded != nil {
		out.Expanded = append([]generator.ExpandedGoal(nil), p.Expanded...)
	}
	return out
}

// withSanitized merges non-empty sanitized fields over the post.
func (p Post) withSanitized(s generator.Sanitized) Post {
	out := p.clone()
	if s.Title != "" {
		out.Title = s.Title
	}
	if out.Draft != nil {
		if s.Summary != "" {
			out.Draft.Summary = s.Summary
		}
		if s.Conclusion != "" {
			out.Draft.Conclusion = s.Conclusion
		}
		if len(s.Goals) == len(out.Draft.Goals) {
			for i, g := range s.Goals {
				if g != "" {
					out.Draft.Goals[i] = g
				}
			}
		}
	}
	for i, body := range s.ExpandedBodies {
		if i < len(out.Expanded) && body != "" {
			out.Expanded[i].Body = body
		}
	}
	return out
}

// MarshalJSON adds the derived stage for the view layer.
func (p Post) MarshalJSON() ([]byte, error) {
	type plain Post
	return json.Marshal(struct {
		plain
		Stage Stage `json:"stage"`
	}{plain(p), p.Stage()})
}
