package pipeline

import "fmt"

// Event is a state transition. Apply is pure: it returns the next State.
type Event interface {
	Apply(State) State
}

// Reduce applies ev to s.
func Reduce(s State, ev Event) State {
	return ev.Apply(s)
}

// Started clears the previous session and begins topic discovery.
type Started struct{}

func (Started) Apply(State) State {
	s := Initial()
	s.Step = StepGeneratingTopics
	s.Progress.Message = "Discovering topics..."
	return s
}

// TopicsReady installs the freshly discovered pending posts.
type TopicsReady struct{ Posts []Post }

func (e TopicsReady) Apply(s State) State {
	if s.Step != StepGeneratingTopics {
		return s
	}
	s.Step = StepGeneratingContent
	s.Posts = append([]Post{}, e.Posts...)
	s.SelectedPostID = ""
	s.Progress = Progress{Current: topicsBaseline, Total: ProgressTotal, Message: fmt.Sprintf("Found %d topics", len(e.Posts))}
	return s
}

// ProgressChanged updates the progress descriptor.
type ProgressChanged struct {
	Current int
	Message string
}

func (e ProgressChanged) Apply(s State) State {
	s.Progress = Progress{Current: clampProgress(e.Current), Total: ProgressTotal, Message: e.Message}
	return s
}

// PostStarted marks a post as being generated.
type PostStarted struct{ ID string }

func (e PostStarted) Apply(s State) State {
	if s.Step != StepGeneratingContent {
		return s
	}
	return s.withStatus(e.ID, StatusGenerating)
}

// PostCompleted merges a fully generated post.
type PostCompleted struct{ Post Post }

func (e PostCompleted) Apply(s State) State {
	if s.Step != StepGeneratingContent {
		return s
	}
	p := e.Post.clone()
	p.Status = StatusCompleted
	return s.withPost(p)
}

// PostFailed marks a post whose generation failed.
type PostFailed struct{ ID string }

func (e PostFailed) Apply(s State) State {
	if s.Step != StepGeneratingContent {
		return s
	}
	return s.withStatus(e.ID, StatusError)
}

// Aborted ends a failed start: back to idle with nothing retained but the error.
type Aborted struct{ Err string }

func (e Aborted) Apply(State) State {
	s := Initial()
	s.Error = e.Err
	return s
}

// DraftsDone moves to review, ranking by score when Ranked is set.
type DraftsDone struct{ Ranked bool }

func (e DraftsDone) Apply(s State) State {
	if s.Step != StepGeneratingContent {
		return s
	}
	if e.Ranked {
		s.Posts = rankByScore(s.Posts)
	}
	s.Step = StepReview
	s.Progress = Progress{Current: ProgressTotal, Total: ProgressTotal, Message: "Ready for review"}
	return s
}

// Selected chooses the post to publish. Unknown ids and other steps are ignored.
type Selected struct{ ID string }

func (e Selected) Apply(s State) State {
	if s.Step != StepReview {
		return s
	}
	if _, ok := s.Post(e.ID); !ok {
		return s
	}
	s.SelectedPostID = e.ID
	return s
}

// FinalizeStarted begins finalization of the selected post.
type FinalizeStarted struct{}

func (FinalizeStarted) Apply(s State) State {
	if s.Step != StepReview {
		return s
	}
	if _, ok := s.Selected(); !ok {
		return s
	}
	s.Step = StepFinalizing
	s.Error = ""
	s.Progress = Progress{Current: 0, Total: ProgressTotal, Message: "Finalizing..."}
	return s
}

// Finalized commits the expanded, illustrated and sanitized post.
type Finalized struct{ Post Post }

func (e Finalized) Apply(s State) State {
	if s.Step != StepFinalizing || e.Post.ID != s.SelectedPostID {
		return s
	}
	p := e.Post.clone()
	p.Status = StatusCompleted
	s = s.withPost(p)
	s.Step = StepPublished
	s.Progress = Progress{Current: ProgressTotal, Total: ProgressTotal, Message: "Ready to publish"}
	return s
}

// FinalizeFailed returns to review with the post untouched.
type FinalizeFailed struct{ Err string }

func (e FinalizeFailed) Apply(s State) State {
	if s.Step != StepFinalizing {
		return s
	}
	s.Step = StepReview
	s.Error = e.Err
	s.Progress = Progress{Current: ProgressTotal, Total: ProgressTotal, Message: "Finalize failed"}
	return s
}

// Reset returns to the empty session.
type Reset struct{}

func (Reset) Apply(State) State {
	return Initial()
}

func clampProgress(v int) int {
	if v < 0 {
		return 0
	}
	if v > ProgressTotal {
		return ProgressTotal
	}
	return v
}
