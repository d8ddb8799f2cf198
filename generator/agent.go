package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrGenerationFailed 标记模型调用失败或返回格式不对。
var ErrGenerationFailed = errors.New("generation failed")

// DefaultTopicCount is the size of one topic discovery batch.
const DefaultTopicCount = 5

// Observer 在每次模型调用结束后被通知。
type Observer func(op string, elapsed time.Duration, err error)

// Agent 负责调用 LLM 和图片接口完成各个内容操作。
// 不持有会话状态，每次调用都是一次独立的请求。
type Agent struct {
	llm        LLMClient
	images     ImageClient
	topicCount int
	observe    Observer
	log        logrus.FieldLogger
}

// AgentOption customizes an Agent.
type AgentOption func(*Agent)

// WithImageClient 设置图片接口；不设置时全部使用占位图。
func WithImageClient(c ImageClient) AgentOption {
	return func(a *Agent) { a.images = c }
}

// WithTopicCount 覆盖每批选题数量。
func WithTopicCount(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.topicCount = n
		}
	}
}

// WithObserver 注册每次调用的回调。
func WithObserver(o Observer) AgentOption {
	return func(a *Agent) { a.observe = o }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

func NewAgent(llm LLMClient, opts ...AgentOption) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	a := &Agent{
		llm:        llm,
		topicCount: DefaultTopicCount,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// DiscoverTopics 返回一批选题，theme 非空时围绕 theme。
func (a *Agent) DiscoverTopics(ctx context.Context, theme string) ([]Topic, error) {
	var topics []Topic
	err := a.exchange(ctx, BuildTopicsPrompt(theme, a.topicCount), func(raw string) error {
		var err error
		topics, err = ParseTopics(raw, a.topicCount)
		return err
	})
	return topics, err
}

// DraftContent 生成摘要、要点和结论。
func (a *Agent) DraftContent(ctx context.Context, t Topic) (Draft, error) {
	var d Draft
	err := a.exchange(ctx, BuildDraftPrompt(t), func(raw string) error {
		var err error
		d, err = ParseDraft(raw)
		return err
	})
	return d, err
}

// ScoreContent 给首稿打分，越高越好。
func (a *Agent) ScoreContent(ctx context.Context, art Article) (float64, error) {
	var score float64
	err := a.exchange(ctx, BuildScorePrompt(art), func(raw string) error {
		var err error
		score, err = ParseScore(raw)
		return err
	})
	return score, err
}

// ExpandContent 把要点扩写成带配图的小节。
func (a *Agent) ExpandContent(ctx context.Context, art Article) ([]ExpandedGoal, error) {
	var goals []ExpandedGoal
	err := a.exchange(ctx, BuildExpandPrompt(art), func(raw string) error {
		var err error
		goals, err = ParseExpansion(raw)
		return err
	})
	for i := range goals {
		if goals[i].ImagePrompt == "" {
			goals[i].ImagePrompt = fmt.Sprintf("Editorial illustration of %s. Clean, modern, no text.", goals[i].Title)
		}
	}
	return goals, err
}

// SanitizeContent 返回审校后的替换文本。
func (a *Agent) SanitizeContent(ctx context.Context, art Article) (Sanitized, error) {
	var s Sanitized
	err := a.exchange(ctx, BuildSanitizePrompt(art), func(raw string) error {
		var err error
		s, err = ParseSanitized(raw)
		return err
	})
	return s, err
}

// GenerateImage 返回文章配图，prompt 非空时使用 prompt。
// 不会失败：接口出错时退回占位图。
func (a *Agent) GenerateImage(ctx context.Context, art Article, prompt string) string {
	if prompt == "" {
		prompt = ImagePrompt(art)
	}
	fallback := func() string {
		ref, err := PlaceholderImage(art.ID+"|"+prompt, art.Title)
		if err != nil {
			a.log.WithError(err).Error("render placeholder image")
			return ""
		}
		return ref
	}
	if a.images == nil {
		return fallback()
	}

	start := time.Now()
	ref, err := a.images.GenerateImage(ctx, prompt)
	if err == nil && ref == "" {
		err = errors.New("image backend returned no image")
	}
	a.notify(OpGenerateImage, time.Since(start), err)
	if err != nil {
		a.log.WithFields(logrus.Fields{"op": OpGenerateImage, "post_id": art.ID}).
			WithError(err).Warn("image generation failed, using placeholder")
		return fallback()
	}
	return ref
}

func (a *Agent) exchange(ctx context.Context, prompt Prompt, parse func(string) error) error {
	start := time.Now()
	raw, err := a.llm.Complete(ctx, prompt)
	if err == nil {
		err = parse(raw)
	}
	a.notify(prompt.Op, time.Since(start), err)
	if err != nil {
		a.log.WithField("op", prompt.Op).WithError(err).Warn("model exchange failed")
		return fmt.Errorf("%s: %w: %w", prompt.Op, ErrGenerationFailed, err)
	}
	a.log.WithFields(logrus.Fields{"op": prompt.Op, "elapsed": time.Since(start).Round(time.Millisecond)}).
		Debug("model exchange done")
	return nil
}

func (a *Agent) notify(op string, elapsed time.Duration, err error) {
	if a.observe != nil {
		a.observe(op, elapsed, err)
	}
}
