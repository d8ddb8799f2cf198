package exchangelog

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ai_content_pipeline/generator"
)

// Recorder wraps an LLM client and records every exchange in a Store.
// Recording failures are logged and never affect the exchange itself.
type Recorder struct {
	next     generator.LLMClient
	store    *Store
	provider string
	log      logrus.FieldLogger
}

// NewRecorder decorates next. provider labels the rows.
func NewRecorder(next generator.LLMClient, store *Store, provider string, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{next: next, store: store, provider: provider, log: log}
}

func (r *Recorder) Complete(ctx context.Context, prompt generator.Prompt) (string, error) {
	start := time.Now()
	resp, err := r.next.Complete(ctx, prompt)

	e := Exchange{
		Op:        prompt.Op,
		Provider:  r.provider,
		System:    prompt.System,
		Prompt:    prompt.User,
		Response:  resp,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	// the run context may already be cancelled; the row is still worth keeping
	if _, recErr := r.store.Record(context.WithoutCancel(ctx), e); recErr != nil {
		r.log.WithError(recErr).WithField("op", prompt.Op).Warn("exchange log write failed")
	}
	return resp, err
}
