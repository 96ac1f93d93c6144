package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alitto/pond"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codearena/arena/traces"
)

const (
	defaultMaxRetries = 2
	workspaceWorkers  = 4

	problemsPath  = "/api/problem"
	problemPath   = "/api/problem/{problemId}"
	testCasePath  = "/api/test/{problemId}"
	templatePath  = "/api/code-template/{problemId}"
	languagesPath = "/api/code-template/languages/{problemId}"
)

type Problem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
	TopicTags   string `json:"topicTags"`
}

// Tags splits the comma separated topic tags.
func (p Problem) Tags() []string {
	var tags []string
	for _, t := range strings.Split(p.TopicTags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

type TestCase struct {
	ID             int64  `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Sample         bool   `json:"sample"`
}

type CodeTemplate struct {
	ID       int64  `json:"id"`
	Language string `json:"language"`
	Template string `json:"template"`
}

// ProblemClient reads problems and their attachments. GET requests are retried on
// connection errors and 5xx responses.
type ProblemClient struct {
	wc   *webClient
	pool *pond.WorkerPool
}

func NewProblemClient(opts Options) *ProblemClient {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: opts.transport(),
		Timeout:   opts.timeout(),
	}
	rc.RetryMax = defaultMaxRetries
	if opts.MaxRetries > 0 {
		rc.RetryMax = opts.MaxRetries
	}
	if opts.RetryWait > 0 {
		rc.RetryWaitMin = opts.RetryWait
		rc.RetryWaitMax = 4 * opts.RetryWait
	}
	rc.Logger = slog.Default()
	// Hand the final response back instead of a generic "giving up" error so the
	// status code still reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	wc := newWebClient(rc.StandardClient(), opts.baseURL(), opts.Identity)
	wc.tokens = opts.Tokens
	wc.onUnauthorized = opts.OnUnauthorized
	return &ProblemClient{
		wc:   wc,
		pool: pond.New(workspaceWorkers, 0),
	}
}

// Close stops the worker pool used by Workspace.
func (c *ProblemClient) Close() {
	c.pool.StopAndWait()
}

// Problems lists all problems, newest first.
func (c *ProblemClient) Problems(ctx context.Context) ([]Problem, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "problems")
	defer span.End()

	var problems []Problem
	if err := c.wc.Get(ctx, problemsPath, nil, &problems); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	return problems, nil
}

// Problem fetches one problem. It requires a token with the USER role.
func (c *ProblemClient) Problem(ctx context.Context, id int64) (*Problem, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "problem", trace.WithAttributes(attribute.Int64("problem_id", id)))
	defer span.End()

	var resp struct {
		Problem *Problem `json:"problem"`
	}
	if err := c.wc.Get(ctx, problemPath, c.byProblem(id), &resp); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	if resp.Problem == nil {
		return nil, traces.RecordError(ctx, fmt.Errorf("%w: problem %d missing from response", ErrMalformedResponse, id))
	}
	return resp.Problem, nil
}

// TestCases fetches the test cases of a problem. The backend answers with either a
// single object or a list under "testcase".
func (c *ProblemClient) TestCases(ctx context.Context, problemID int64) ([]TestCase, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "test_cases", trace.WithAttributes(attribute.Int64("problem_id", problemID)))
	defer span.End()

	var resp struct {
		TestCase json.RawMessage `json:"testcase"`
	}
	if err := c.wc.Get(ctx, testCasePath, c.byProblem(problemID), &resp); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	cases, err := decodeOneOrMany[TestCase](resp.TestCase)
	if err != nil {
		return nil, traces.RecordError(ctx, fmt.Errorf("%w: test cases: %v", ErrMalformedResponse, err))
	}
	return cases, nil
}

// Templates fetches the starter code of a problem for every language.
func (c *ProblemClient) Templates(ctx context.Context, problemID int64) ([]CodeTemplate, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "templates", trace.WithAttributes(attribute.Int64("problem_id", problemID)))
	defer span.End()

	var templates []CodeTemplate
	if err := c.wc.Get(ctx, templatePath, c.byProblem(problemID), &templates); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	return templates, nil
}

// Languages lists the languages a problem has templates for.
func (c *ProblemClient) Languages(ctx context.Context, problemID int64) ([]string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "languages", trace.WithAttributes(attribute.Int64("problem_id", problemID)))
	defer span.End()

	var resp struct {
		Languages []string `json:"languages"`
	}
	if err := c.wc.Get(ctx, languagesPath, c.byProblem(problemID), &resp); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	return resp.Languages, nil
}

func (c *ProblemClient) byProblem(id int64) *resty.Request {
	return c.wc.NewRequest(nil, map[string]string{"problemId": strconv.FormatInt(id, 10)}, nil)
}

func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var many []T
		err := json.Unmarshal(raw, &many)
		return many, err
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// FilterProblems returns the problems matching difficulty and tag, both case
// insensitive. Empty filters match everything.
func FilterProblems(problems []Problem, difficulty, tag string) []Problem {
	var out []Problem
	for _, p := range problems {
		if difficulty != "" && !strings.EqualFold(p.Difficulty, difficulty) {
			continue
		}
		if tag != "" && !hasTag(p, tag) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasTag(p Problem, tag string) bool {
	for _, t := range p.Tags() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
