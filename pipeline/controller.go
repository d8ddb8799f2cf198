package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ai_content_pipeline/generator"
)

var (
	// ErrBusy is returned when start is requested while a run is in flight.
	ErrBusy = errors.New("a pipeline run is already in progress")
	// ErrSuperseded is returned by a run whose results were discarded by a reset or a newer run.
	ErrSuperseded = errors.New("pipeline run superseded")
	// ErrNoSelection is returned when an artifact needs a selected post and none is set.
	ErrNoSelection = errors.New("no post selected")
)

// Generator is the content generation client the controller depends on.
type Generator interface {
	DiscoverTopics(ctx context.Context, theme string) ([]generator.Topic, error)
	DraftContent(ctx context.Context, t generator.Topic) (generator.Draft, error)
	ScoreContent(ctx context.Context, a generator.Article) (float64, error)
	ExpandContent(ctx context.Context, a generator.Article) ([]generator.ExpandedGoal, error)
	GenerateImage(ctx context.Context, a generator.Article, prompt string) string
	SanitizeContent(ctx context.Context, a generator.Article) (generator.Sanitized, error)
}

// RunObserver is told how every start and finalize run ended.
type RunObserver func(run, outcome string, elapsed time.Duration)

// Run outcomes reported to the RunObserver.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Controller owns the session state and drives the pipeline over it. Every
// change goes through a pure Event applied under mu. Each run is tagged with an
// epoch; events from a run whose epoch is no longer current are dropped.
type Controller struct {
	gen     Generator
	scoring bool
	log     logrus.FieldLogger
	observe RunObserver

	mu      sync.Mutex
	state   State
	epoch   uint64
	cancel  context.CancelFunc
	subs    map[int]chan State
	nextSub int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithScoring toggles the scoring request and the ranking that follows it.
func WithScoring(enabled bool) Option {
	return func(c *Controller) { c.scoring = enabled }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRunObserver registers a callback for finished runs.
func WithRunObserver(o RunObserver) Option {
	return func(c *Controller) { c.observe = o }
}

// WithState injects the starting state instead of the empty session. A
// selection that names no post is dropped.
func WithState(s State) Option {
	return func(c *Controller) {
		c.state = s.Clone()
		if _, ok := c.state.Selected(); !ok {
			c.state.SelectedPostID = ""
		}
	}
}

func NewController(gen Generator, opts ...Option) (*Controller, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	c := &Controller{
		gen:     gen,
		scoring: true,
		log:     logrus.StandardLogger(),
		state:   Initial(),
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Subscribe returns a channel that receives the latest state after every
// change. Slow readers only miss intermediate states, never the newest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 1)
	c.subs[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

// apply must be called with mu held.
func (c *Controller) apply(ev Event) {
	c.state = Reduce(c.state, ev)
	snap := c.state.Clone()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// dispatch applies ev if epoch is still current and reports whether it did.
func (c *Controller) dispatch(epoch uint64, ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.log.WithFields(logrus.Fields{"epoch": epoch, "current": c.epoch, "event": fmt.Sprintf("%T", ev)}).
			Debug("discarding stale result")
		return false
	}
	c.apply(ev)
	return true
}

// begin starts a new run under mu and returns its epoch and context.
func (c *Controller) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	c.epoch++
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return c.epoch, runCtx, cancel
}

// Start discovers topics and generates every post. It blocks until the
// session reaches review or fails; failures are also recorded in the state.
func (c *Controller) Start(ctx context.Context, theme string) error {
	done, err := c.StartAsync(ctx, theme)
	if err != nil {
		return err
	}
	return <-done
}

// StartAsync begins a start run and returns at once. The channel yields the
// run's result. ErrBusy is returned when another run is in flight.
func (c *Controller) StartAsync(ctx context.Context, theme string) (<-chan error, error) {
	c.mu.Lock()
	if c.state.Step.running() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	epoch, ctx, cancel := c.begin(ctx)
	c.apply(Started{})
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer cancel()
		started := time.Now()
		log := c.log.WithFields(logrus.Fields{"epoch": epoch, "run": "start"})
		log.WithField("theme", theme).Info("pipeline started")

		err := c.runStart(ctx, epoch, theme, log)
		c.finish("start", started, err, log)
		done <- err
	}()
	return done, nil
}

func (c *Controller) runStart(ctx context.Context, epoch uint64, theme string, log logrus.FieldLogger) error {
	topics, err := c.gen.DiscoverTopics(ctx, theme)
	if err == nil && len(topics) == 0 {
		err = errors.New("no topics returned")
	}
	if err != nil {
		if !c.dispatch(epoch, Aborted{Err: fmt.Sprintf("Topic discovery failed: %v", err)}) {
			return ErrSuperseded
		}
		return fmt.Errorf("discover topics: %w", err)
	}

	posts := make([]Post, len(topics))
	for i, t := range topics {
		posts[i] = newPost(t)
	}
	if !c.dispatch(epoch, TopicsReady{Posts: posts}) {
		return ErrSuperseded
	}
	log.WithField("count", len(posts)).Info("topics ready")

	for i, p := range posts {
		if !c.dispatch(epoch, PostStarted{ID: p.ID}) {
			return ErrSuperseded
		}
		done, err := c.generatePost(ctx, epoch, i, len(posts), p)
		if err != nil {
			c.dispatch(epoch, PostFailed{ID: p.ID})
			if !c.dispatch(epoch, Aborted{Err: fmt.Sprintf("Generating %q failed: %v", p.Title, err)}) {
				return ErrSuperseded
			}
			return fmt.Errorf("generate post %d: %w", i+1, err)
		}
		if !c.dispatch(epoch, PostCompleted{Post: done}) {
			return ErrSuperseded
		}
		log.WithFields(logrus.Fields{"post_id": p.ID, "index": i + 1}).Info("post completed")
	}

	if !c.dispatch(epoch, DraftsDone{Ranked: c.scoring}) {
		return ErrSuperseded
	}
	return nil
}

// generatePost runs draft then score alongside image generation.
func (c *Controller) generatePost(ctx context.Context, epoch uint64, i, n int, p Post) (Post, error) {
	span := (ProgressTotal - topicsBaseline) / n
	base := topicsBaseline + span*i
	label := func(verb string) string {
		return fmt.Sprintf("%s post %d of %d: %s", verb, i+1, n, p.Title)
	}

	var (
		draft generator.Draft
		score *float64
		image string
	)
	g := NewGroup(ctx)
	g.Go(func(ctx context.Context) error {
		c.dispatch(epoch, ProgressChanged{Current: base, Message: label("Drafting")})
		d, err := c.gen.DraftContent(ctx, p.topic())
		if err != nil {
			return err
		}
		draft = d
		if !c.scoring {
			return nil
		}
		c.dispatch(epoch, ProgressChanged{Current: base + span/2, Message: label("Scoring")})
		drafted := p.clone()
		drafted.Draft = &d
		s, err := c.gen.ScoreContent(ctx, drafted.Article())
		if err != nil {
			return err
		}
		score = &s
		return nil
	})
	g.Go(func(ctx context.Context) error {
		c.dispatch(epoch, ProgressChanged{Current: base, Message: label("Illustrating")})
		image = c.gen.GenerateImage(ctx, p.Article(), "")
		return nil
	})
	if err := g.Wait(); err != nil {
		return Post{}, err
	}

	out := p.clone()
	out.Draft = &draft
	out.Score = score
	out.Image = image
	out.Status = StatusCompleted
	return out, nil
}

// Select picks the post to publish and reports whether it did. It is a no-op
// outside review or for unknown ids.
func (c *Controller) Select(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(Selected{ID: id})
	return id != "" && c.state.Step == StepReview && c.state.SelectedPostID == id
}

// Finalize expands, illustrates and sanitizes the selected post. Without a
// selection, or outside review, it does nothing. On failure the session goes
// back to review with the post exactly as it was.
func (c *Controller) Finalize(ctx context.Context) error {
	done, err := c.FinalizeAsync(ctx)
	if err != nil {
		return err
	}
	return <-done
}

// FinalizeAsync begins finalization and returns at once. When there is
// nothing to finalize the channel yields nil immediately. ErrBusy is returned
// when another run is in flight.
func (c *Controller) FinalizeAsync(ctx context.Context) (<-chan error, error) {
	done := make(chan error, 1)
	c.mu.Lock()
	if c.state.Step.running() {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	post, ok := c.state.Selected()
	if c.state.Step != StepReview || !ok {
		c.mu.Unlock()
		done <- nil
		return done, nil
	}
	post = post.clone()
	epoch, ctx, cancel := c.begin(ctx)
	c.apply(FinalizeStarted{})
	c.mu.Unlock()

	go func() {
		defer cancel()
		started := time.Now()
		log := c.log.WithFields(logrus.Fields{"epoch": epoch, "run": "finalize", "post_id": post.ID})
		log.Info("finalize started")

		result, err := c.finalizePost(ctx, epoch, post)
		if err != nil {
			if !c.dispatch(epoch, FinalizeFailed{Err: fmt.Sprintf("Finalizing %q failed: %v", post.Title, err)}) {
				err = ErrSuperseded
			} else {
				err = fmt.Errorf("finalize: %w", err)
			}
		} else if !c.dispatch(epoch, Finalized{Post: result}) {
			err = ErrSuperseded
		}
		c.finish("finalize", started, err, log)
		done <- err
	}()
	return done, nil
}

// finalizePost works on a private copy; nothing reaches the state until it returns.
func (c *Controller) finalizePost(ctx context.Context, epoch uint64, post Post) (Post, error) {
	c.dispatch(epoch, ProgressChanged{Current: 10, Message: "Expanding content"})
	goals, err := c.gen.ExpandContent(ctx, post.Article())
	if err != nil {
		return Post{}, err
	}

	c.dispatch(epoch, ProgressChanged{Current: 40, Message: fmt.Sprintf("Generating %d images", len(goals))})
	article := post.Article()
	images, err := Collect(ctx, len(goals), func(ctx context.Context, i int) (string, error) {
		return c.gen.GenerateImage(ctx, article, goals[i].ImagePrompt), nil
	})
	if err != nil {
		return Post{}, err
	}
	working := post.clone()
	working.Expanded = make([]generator.ExpandedGoal, len(goals))
	for i, g := range goals {
		g.Image = images[i]
		working.Expanded[i] = g
	}

	c.dispatch(epoch, ProgressChanged{Current: 80, Message: "Sanitizing content"})
	sanitized, err := c.gen.SanitizeContent(ctx, working.Article())
	if err != nil {
		return Post{}, err
	}
	return working.withSanitized(sanitized), nil
}

// Reset returns to the empty session. Results still in flight are discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.apply(Reset{})
	c.log.WithField("epoch", c.epoch).Info("session reset")
}

// Markdown renders the selected post.
func (c *Controller) Markdown() (string, error) {
	p, ok := c.State().Selected()
	if !ok {
		return "", ErrNoSelection
	}
	return Markdown(p), nil
}

func (c *Controller) finish(run string, started time.Time, err error, log logrus.FieldLogger) {
	elapsed := time.Since(started)
	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrSuperseded):
		outcome = OutcomeSuperseded
		log.Info("run superseded, results discarded")
	case err != nil:
		outcome = OutcomeError
		log.WithError(err).Warn("run failed")
	default:
		log.WithField("elapsed", elapsed.Round(time.Millisecond)).Info("run finished")
	}
	if c.observe != nil {
		c.observe(run, outcome, elapsed)
	}
}
