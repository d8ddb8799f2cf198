package pipeline

import "sort"

// Step is the current stage of the workflow.
type Step string

const (
	StepIdle              Step = "idle"
	StepGeneratingTopics  Step = "generating_topics"
	StepGeneratingContent Step = "generating_content"
	StepReview            Step = "review"
	StepFinalizing        Step = "finalizing"
	StepPublished         Step = "published"
)

// running reports whether a pipeline operation is in flight in this step.
func (s Step) running() bool {
	return s == StepGeneratingTopics || s == StepGeneratingContent || s == StepFinalizing
}

// ProgressTotal is the fixed scale of Progress.Current.
const ProgressTotal = 100

// topicsBaseline is where progress sits once topics are known.
const topicsBaseline = 10

// Progress is a human-readable progress descriptor on a 0-100 scale.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// State is the whole session. It is a value: transitions return a new State
// and never modify the one they were given.
type State struct {
	Step           Step     `json:"step"`
	Posts          []Post   `json:"posts"`
	SelectedPostID string   `json:"selected_post_id,omitempty"`
	Progress       Progress `json:"progress"`
	Error          string   `json:"error,omitempty"`
}

// Initial returns the empty session.
func Initial() State {
	return State{
		Step:     StepIdle,
		Posts:    []Post{},
		Progress: Progress{Total: ProgressTotal},
	}
}

// Post looks up a post by id.
func (s State) Post(id string) (Post, bool) {
	for _, p := range s.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

// Selected returns the selected post, if any.
func (s State) Selected() (Post, bool) {
	if s.SelectedPostID == "" {
		return Post{}, false
	}
	return s.Post(s.SelectedPostID)
}

// Clone returns a copy whose posts can be read without holding the controller lock.
func (s State) Clone() State {
	out := s
	out.Posts = make([]Post, len(s.Posts))
	for i, p := range s.Posts {
		out.Posts[i] = p.clone()
	}
	return out
}

func (s State) withPost(p Post) State {
	posts := make([]Post, len(s.Posts))
	copy(posts, s.Posts)
	for i := range posts {
		if posts[i].ID == p.ID {
			posts[i] = p
		}
	}
	s.Posts = posts
	return s
}

func (s State) withStatus(id string, status Status) State {
	p, ok := s.Post(id)
	if !ok {
		return s
	}
	p.Status = status
	return s.withPost(p)
}

// rankByScore stable-sorts posts descending by score; unscored posts sink to
// the end and equal scores keep their relative order.
func rankByScore(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Score, out[j].Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out
}
