package api

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codearena/arena/traces"
)

// Workspace is everything needed to start solving a problem.
type Workspace struct {
	Problem   *Problem
	TestCases []TestCase
	Templates []CodeTemplate
	Languages []string
}

// Workspace fetches a problem and its attachments concurrently. The first failure
// cancels the remaining requests.
func (c *ProblemClient) Workspace(ctx context.Context, problemID int64) (*Workspace, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "workspace", trace.WithAttributes(attribute.Int64("problem_id", problemID)))
	defer span.End()

	ws := &Workspace{}
	group, gctx := c.pool.GroupContext(ctx)
	group.Submit(func() (err error) {
		ws.Problem, err = c.Problem(gctx, problemID)
		return err
	})
	group.Submit(func() (err error) {
		ws.TestCases, err = c.TestCases(gctx, problemID)
		return err
	})
	group.Submit(func() (err error) {
		ws.Templates, err = c.Templates(gctx, problemID)
		return err
	})
	group.Submit(func() (err error) {
		ws.Languages, err = c.Languages(gctx, problemID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, traces.RecordError(ctx, err)
	}
	return ws, nil
}
