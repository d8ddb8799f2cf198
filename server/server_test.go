package server

import (
	"bufio"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_content_pipeline/exchangelog"
	"ai_content_pipeline/generator"
	"ai_content_pipeline/metrics"
	"ai_content_pipeline/pipeline"
	"ai_content_pipeline/publisher"
)

// gatedLLM answers like MockLLM but holds topic discovery until the gate opens.
type gatedLLM struct {
	generator.MockLLM
	gate chan struct{}
}

func (g gatedLLM) Complete(ctx context.Context, p generator.Prompt) (string, error) {
	if p.Op == generator.OpDiscoverTopics {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.MockLLM.Complete(ctx, p)
}

type testEnv struct {
	srv *Server
	out string
}

func newEnv(t *testing.T, llm generator.LLMClient, opts ...Option) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	agent, err := generator.NewAgent(llm, generator.WithTopicCount(3), generator.WithLogger(logger))
	require.NoError(t, err)
	ctrl, err := pipeline.NewController(agent, pipeline.WithLogger(logger))
	require.NoError(t, err)
	out := t.TempDir()
	pub, err := publisher.New(out, nil, logger)
	require.NoError(t, err)
	srv, err := New(ctrl, pub, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, out: out}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) state(t *testing.T) pipeline.State {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st pipeline.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func (e *testEnv) waitFor(t *testing.T, step pipeline.Step) pipeline.State {
	t.Helper()
	var st pipeline.State
	require.Eventually(t, func() bool {
		st = e.state(t)
		return st.Step == step
	}, 5*time.Second, 10*time.Millisecond, "waiting for %s", step)
	return st
}

func TestFullWorkflow(t *testing.T) {
	env := newEnv(t, generator.MockLLM{})

	st := env.state(t)
	assert.Equal(t, pipeline.StepIdle, st.Step)
	assert.NotNil(t, st.Posts)

	rec := env.do(t, http.MethodPost, "/api/start", `{"context":"Quantum"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	st = env.waitFor(t, pipeline.StepReview)
	require.Len(t, st.Posts, 3)
	assert.Equal(t, 100, st.Progress.Current)
	for _, p := range st.Posts {
		assert.Contains(t, p.Title, "Quantum")
		assert.Equal(t, pipeline.StatusCompleted, p.Status)
	}
	id := st.Posts[0].ID

	rec = env.do(t, http.MethodGet, "/api/markdown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/select", `{"post_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/select", `{"post_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# "+st.Posts[0].Title+"\n"))
	assert.Contains(t, rec.Body.String(), "## Key Takeaways")

	rec = env.do(t, http.MethodGet, "/api/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<article>")

	rec = env.do(t, http.MethodGet, "/api/posts/"+id+"/image.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="`+publisher.Slugify(st.Posts[0].Title)+`.png"`,
		rec.Header().Get("Content-Disposition"))
	_, err := png.Decode(rec.Body)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/posts/"+id+"/image.png?name=my-cover", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="my-cover.png"`, rec.Header().Get("Content-Disposition"))

	rec = env.do(t, http.MethodGet, "/api/posts/"+id+"/sections/0/image.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no sections before finalize")

	rec = env.do(t, http.MethodPost, "/api/finalize", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	st = env.waitFor(t, pipeline.StepPublished)
	p, ok := st.Selected()
	require.True(t, ok)
	assert.Len(t, p.Expanded, 3)

	rec = env.do(t, http.MethodGet, "/api/markdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "## Key Takeaways")
	assert.Contains(t, rec.Body.String(), "### The core idea")

	rec = env.do(t, http.MethodGet, "/api/posts/"+id+"/sections/0/image.png?name=core.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="core.png"`, rec.Header().Get("Content-Disposition"))
	_, err = png.Decode(rec.Body)
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/posts/"+id+"/sections/2/image.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="`+publisher.Slugify(p.Title+" Know the limits")+`.png"`,
		rec.Header().Get("Content-Disposition"))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/posts/"+id+"/sections/3/image.png", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/posts/"+id+"/sections/x/image.png", "").Code)

	rec = env.do(t, http.MethodPost, "/api/export", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var pkg publisher.Package
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pkg))
	assert.Equal(t, id, pkg.PostID)
	assert.Len(t, pkg.Images, 4)
	md, err := os.ReadFile(pkg.Markdown)
	require.NoError(t, err)
	assert.NotContains(t, string(md), "data:image")
	assert.Equal(t, env.out, filepath.Dir(pkg.Dir))

	rec = env.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.Initial(), env.state(t))
}

func TestStartWhileBusyConflicts(t *testing.T) {
	gate := make(chan struct{})
	env := newEnv(t, gatedLLM{gate: gate})

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/start", "").Code)
	assert.Equal(t, pipeline.StepGeneratingTopics, env.state(t).Step)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/start", "").Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/select", `{"post_id":"x"}`).Code)

	close(gate)
	env.waitFor(t, pipeline.StepReview)
}

func TestResetDuringRunDiscardsResults(t *testing.T) {
	gate := make(chan struct{})
	env := newEnv(t, gatedLLM{gate: gate})

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/start", "").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/reset", "").Code)
	close(gate)

	env.srv.Close()
	assert.Equal(t, pipeline.Initial(), env.state(t))
}

func TestFinalizeWithoutSelection(t *testing.T) {
	env := newEnv(t, generator.MockLLM{})
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/finalize", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/export", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/preview", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/posts/x/image.png", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/select", `{}`).Code)
}

func TestExchangesEndpoint(t *testing.T) {
	env := newEnv(t, generator.MockLLM{})
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/exchanges", "").Code)

	store, err := exchangelog.Open(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer store.Close()
	logger, _ := test.NewNullLogger()
	env = newEnv(t, exchangelog.NewRecorder(generator.MockLLM{}, store, "mock", logger), WithExchangeLog(store))

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/start", "").Code)
	env.waitFor(t, pipeline.StepReview)

	rec := env.do(t, http.MethodGet, "/api/exchanges?op=draft_content&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []exchangelog.Exchange
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, generator.OpDraftContent, rows[0].Op)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/exchanges?limit=0", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t, generator.MockLLM{}, WithMetrics(metrics.New()))
	env.do(t, http.MethodGet, "/api/state", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contentpipe_http_requests_total{endpoint="/api/state",method="GET",status="200"} 1`)
}

func TestEventsStream(t *testing.T) {
	env := newEnv(t, generator.MockLLM{})
	ts := httptest.NewServer(env.srv.Echo)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() pipeline.State {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var st pipeline.State
				require.NoError(t, json.Unmarshal([]byte(data), &st))
				return st
			}
		}
	}
	assert.Equal(t, pipeline.StepIdle, next().Step)

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/start", "").Code)
	for {
		if next().Step == pipeline.StepReview {
			break
		}
	}
}
