package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promethium-examples/runner/internal/repository"
	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/pkg/models"
)

// Submission is the outcome of submitting one request.
type Submission struct {
	Name     string
	Workflow *models.Workflow
	Err      error
}

// Submissions preserves input order.
type Submissions []Submission

// IDs returns the ids of the successful submissions in input order.
func (s Submissions) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, sub := range s {
		if sub.Err == nil && sub.Workflow != nil {
			ids = append(ids, sub.Workflow.ID)
		}
	}
	return ids
}

// Err joins the per-item submission errors.
func (s Submissions) Err() error {
	var errs []error
	for _, sub := range s {
		if sub.Err != nil {
			errs = append(errs, sub.Err)
		}
	}
	return errors.Join(errs...)
}

// Collection is the outcome of waiting for and collecting one workflow.
type Collection struct {
	ID         string
	Workflow   *models.Workflow
	ResultPath string
	Summary    *results.ConformerSummary
	Err        error
}

// Collections preserves id order.
type Collections []Collection

// Err joins the per-item collection errors.
func (c Collections) Err() error {
	var errs []error
	for _, col := range c {
		if col.Err != nil {
			errs = append(errs, col.Err)
		}
	}
	return errors.Join(errs...)
}

// Runner submits batches of workflows and collects their results. Work is
// strictly sequential.
type Runner struct {
	client WorkflowClient
	ledger repository.Ledger
	writer ResultWriter
	logger Logger
}

// NewRunner creates a new Runner. The ledger may be nil.
func NewRunner(client WorkflowClient, ledger repository.Ledger, writer ResultWriter, logger Logger) *Runner {
	return &Runner{
		client: client,
		ledger: ledger,
		writer: writer,
		logger: logger,
	}
}

// SubmitAll submits every request in order. A failed submission is recorded
// on its item and does not stop the remaining submissions.
func (r *Runner) SubmitAll(ctx context.Context, reqs []*models.WorkflowRequest) Submissions {
	subs := make(Submissions, 0, len(reqs))
	for _, req := range reqs {
		sub := Submission{Name: req.Name}

		wf, err := r.client.Submit(ctx, req)
		if err != nil {
			r.logger.Error("workflow submission failed", "name", req.Name, "error", err)
			sub.Err = err
			subs = append(subs, sub)
			continue
		}
		sub.Workflow = wf
		r.logger.Info("workflow submitted", "name", wf.Name, "workflow_id", wf.ID)

		if r.ledger != nil {
			entry := &repository.LedgerEntry{
				WorkflowID:  wf.ID,
				Name:        wf.Name,
				Kind:        req.Kind,
				Status:      wf.Status,
				SubmittedAt: time.Now().UTC(),
			}
			if err := r.ledger.Record(ctx, entry); err != nil {
				// the workflow exists remotely, so keep its id and only warn
				r.logger.Warn("failed to record workflow in ledger", "workflow_id", wf.ID, "error", err)
			}
		}
		subs = append(subs, sub)
	}
	return subs
}

// CollectAll waits for each workflow, reads its status, fetches its results
// and writes them to disk. Wait and fetch failures are recorded per id and
// the loop moves on; a write failure stops the batch and is returned.
func (r *Runner) CollectAll(ctx context.Context, ids []string) (Collections, error) {
	cols := make(Collections, 0, len(ids))
	for _, id := range ids {
		col, err := r.collect(ctx, id)
		cols = append(cols, col)
		if err != nil {
			return cols, err
		}
		if ctx.Err() != nil {
			return cols, ctx.Err()
		}
	}
	return cols, nil
}

// Run submits all requests and then collects every successful submission.
func (r *Runner) Run(ctx context.Context, reqs []*models.WorkflowRequest) (Submissions, Collections, error) {
	subs := r.SubmitAll(ctx, reqs)
	cols, err := r.CollectAll(ctx, subs.IDs())
	return subs, cols, err
}

func (r *Runner) collect(ctx context.Context, id string) (Collection, error) {
	col := Collection{ID: id}

	wf, err := r.client.Wait(ctx, id)
	if err != nil {
		col.Workflow = wf
		col.Err = withID(id, err)
		r.logger.Error("workflow did not finish", "workflow_id", id, "error", err)
		if wf != nil && wf.Status.IsTerminal() {
			r.markCollected(ctx, id, wf.Status, "")
		}
		return col, nil
	}

	waited := wf
	wf, err = r.client.Get(ctx, id)
	if err != nil {
		col.Err = withID(id, err)
		r.logger.Error("failed to read workflow status", "workflow_id", id, "error", err)
		return col, nil
	}
	if wf.Name == "" {
		wf.Name = r.fallbackName(ctx, id, waited)
	}
	col.Workflow = wf
	r.logger.Info("workflow finished",
		"name", wf.Name,
		"workflow_id", id,
		"status", wf.Status,
		"duration", fmt.Sprintf("%.2fs", wf.DurationSeconds),
	)

	res, err := r.client.Results(ctx, id)
	if err != nil {
		col.Err = withID(id, err)
		r.logger.Error("failed to fetch results", "workflow_id", id, "error", err)
		return col, nil
	}

	path, err := r.writer.Write(wf.Name, res)
	if err != nil {
		col.Err = withID(id, err)
		return col, fmt.Errorf("failed to write results for workflow %s: %w", id, err)
	}
	col.ResultPath = path
	r.logger.Info("results written", "workflow_id", id, "path", path)

	summary, err := results.Summarize(res)
	switch {
	case err == nil:
		col.Summary = summary
	case errors.Is(err, results.ErrNoConformers):
		r.logger.Debug("no conformers artifact", "workflow_id", id)
	default:
		r.logger.Warn("failed to summarize conformers", "workflow_id", id, "error", err)
	}

	r.markCollected(ctx, id, wf.Status, path)
	return col, nil
}

// fallbackName names a workflow whose status response had no name, so its
// result file can still be written.
func (r *Runner) fallbackName(ctx context.Context, id string, waited *models.Workflow) string {
	if waited != nil && waited.Name != "" {
		return waited.Name
	}
	if r.ledger != nil {
		if e, err := r.ledger.Get(ctx, id); err == nil && e.Name != "" {
			return e.Name
		}
	}
	return id
}

func (r *Runner) markCollected(ctx context.Context, id string, status models.WorkflowStatus, path string) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.MarkCollected(ctx, id, status, path); err != nil {
		r.logger.Warn("failed to update ledger", "workflow_id", id, "error", err)
	}
}

// withID makes sure an error names the workflow it belongs to.
func withID(id string, err error) error {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return err
	}
	return &WorkflowError{ID: id, Err: err}
}
