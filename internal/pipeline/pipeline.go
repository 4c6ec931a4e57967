// Package pipeline runs scrape jobs: discover businesses for a query, then
// audit, score and persist each one on a bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/leadfinder/internal/apperr"
	"github.com/FranksOps/leadfinder/internal/discovery"
	"github.com/FranksOps/leadfinder/internal/metrics"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// State is where a job is in its lifecycle.
type State string

const (
	StateDiscovering State = "discovering"
	StateProcessing  State = "processing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Stages named in JobError.
const (
	StageDiscovery = "discovery"
	StageProcess   = "process"
	StagePersist   = "persist"
	StageCancelled = "cancelled"
)

// Discoverer finds businesses for a query.
type Discoverer interface {
	Discover(ctx context.Context, query string, maxResults int) ([]*storage.Business, error)
}

// Auditor inspects a business's web presence. It must not fail.
type Auditor interface {
	Audit(ctx context.Context, b *storage.Business) storage.AuditSummary
}

// Scorer turns an audit into a lead score.
type Scorer interface {
	Score(b *storage.Business, a storage.AuditSummary) int
}

// Store is the write side of storage.Repository.
type Store interface {
	Upsert(ctx context.Context, b *storage.Business) error
}

// Request starts a job.
type Request struct {
	Query      string `json:"query" validate:"required,max=200"`
	MaxResults int    `json:"max_results" validate:"min=1"`
}

// JobError records one business that could not be processed. BusinessID is
// empty for errors that are not tied to a business.
type JobError struct {
	BusinessID string `json:"business_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// JobResult is the outcome of one Run. It is not persisted.
type JobResult struct {
	ID          string     `json:"job_id"`
	Query       string     `json:"query"`
	MaxResults  int        `json:"max_results"`
	State       State      `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	Discovered  int        `json:"discovered"`
	Count       int        `json:"count"`
	BusinessIDs []string   `json:"business_ids"`
	Errors      []JobError `json:"errors"`
}

// Config tunes a Pipeline.
type Config struct {
	// Workers bounds how many businesses are processed at once.
	Workers int
	// MaxResultsCap is the largest MaxResults a request may ask for.
	MaxResultsCap int
	Logger        *slog.Logger
}

// Pipeline wires the job stages together. It is safe for concurrent use;
// each Run is independent.
type Pipeline struct {
	discoverer Discoverer
	auditor    Auditor
	scorer     Scorer
	store      Store
	validate   *validator.Validate
	workers    int
	maxCap     int
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Pipeline.
func New(d Discoverer, a Auditor, s Scorer, store Store, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxResultsCap <= 0 {
		cfg.MaxResultsCap = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		discoverer: d,
		auditor:    a,
		scorer:     s,
		store:      store,
		validate:   validator.New(),
		workers:    cfg.Workers,
		maxCap:     cfg.MaxResultsCap,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// Validate checks a request without running it.
func (p *Pipeline) Validate(req Request) error {
	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Wrap(apperr.KindValidation, describe(verrs[0]), err).WithOp("pipeline.Run")
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request", err).WithOp("pipeline.Run")
	}
	if req.MaxResults > p.maxCap {
		return apperr.Validation(fmt.Sprintf("max_results must be at most %d", p.maxCap)).WithOp("pipeline.Run")
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "Query":
		if fe.Tag() == "required" {
			return "query is required"
		}
		return fmt.Sprintf("query must be at most %s characters", fe.Param())
	case "MaxResults":
		return "max_results must be at least 1"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// Run executes one job. Invalid input and discovery failures return an
// error and no result. Failures of individual businesses are reported in
// JobResult.Errors and never fail the job. When ctx is cancelled no new
// business is started, in-flight ones finish, and the partial result is
// returned with ctx's error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*JobResult, error) {
	if err := p.Validate(req); err != nil {
		return nil, err
	}

	res := &JobResult{
		ID:          uuid.NewString(),
		Query:       req.Query,
		MaxResults:  req.MaxResults,
		State:       StateDiscovering,
		StartedAt:   p.now(),
		BusinessIDs: []string{},
		Errors:      []JobError{},
	}
	logger := p.logger.With("job", res.ID)
	logger.Info("job started", "query", req.Query, "max_results", req.MaxResults)

	found, err := p.discoverer.Discover(ctx, req.Query, req.MaxResults)
	if err != nil {
		var partial *discovery.PartialError
		if !errors.As(err, &partial) {
			p.finish(logger, res, StateFailed)
			if apperr.KindOf(err) == apperr.KindUnknown {
				err = apperr.Wrap(apperr.KindDiscovery, "discovery failed", err).WithOp("pipeline.Run")
			}
			return nil, err
		}
		res.Errors = append(res.Errors, JobError{Stage: StageDiscovery, Message: partial.Error()})
	}
	res.Discovered = len(found)

	res.State = StateProcessing
	outcomes := p.process(ctx, logger, found)

	for i, b := range found {
		if je := outcomes[i]; je != nil {
			res.Errors = append(res.Errors, *je)
			continue
		}
		res.BusinessIDs = append(res.BusinessIDs, b.ID)
	}
	res.Count = len(res.BusinessIDs)

	if ctx.Err() != nil {
		p.finish(logger, res, StateCancelled)
		return res, ctx.Err()
	}
	p.finish(logger, res, StateCompleted)
	return res, nil
}

func (p *Pipeline) finish(logger *slog.Logger, res *JobResult, state State) {
	res.State = state
	res.CompletedAt = p.now()
	d := res.CompletedAt.Sub(res.StartedAt)
	metrics.RecordJob(string(state), d)
	logger.Info("job finished", "state", state, "persisted", res.Count, "errors", len(res.Errors), "duration", d)
}

// process fans found out over the worker pool and returns one entry per
// business, nil on success. Each goroutine writes only its own slot.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, found []*storage.Business) []*JobError {
	outcomes := make([]*JobError, len(found))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, b := range found {
		if ctx.Err() != nil {
			outcomes[i] = skipped(b)
			continue
		}
		g.Go(func() error {
			// Go may have blocked waiting for a free worker.
			if ctx.Err() != nil {
				outcomes[i] = skipped(b)
				return nil
			}
			// Started businesses run to completion even if the job is cancelled.
			outcomes[i] = p.processOne(context.WithoutCancel(ctx), logger, b)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func skipped(b *storage.Business) *JobError {
	metrics.BusinessesTotal.WithLabelValues("skipped").Inc()
	return &JobError{
		BusinessID: b.ID,
		Name:       b.Name,
		Stage:      StageCancelled,
		Message:    "job cancelled before processing",
	}
}

func (p *Pipeline) processOne(ctx context.Context, logger *slog.Logger, b *storage.Business) (jerr *JobError) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("business processing panicked", "business", b.ID, "panic", r)
			metrics.BusinessesTotal.WithLabelValues("error").Inc()
			jerr = &JobError{
				BusinessID: b.ID,
				Name:       b.Name,
				Stage:      StageProcess,
				Message:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	summary := p.auditor.Audit(ctx, b)
	score := p.scorer.Score(b, summary)
	b.Audit = &summary
	b.LeadScore = &score

	if err := p.store.Upsert(ctx, b); err != nil {
		logger.Error("failed to persist business", "business", b.ID, "err", err)
		metrics.BusinessesTotal.WithLabelValues("error").Inc()
		return &JobError{
			BusinessID: b.ID,
			Name:       b.Name,
			Stage:      StagePersist,
			Message:    err.Error(),
		}
	}

	metrics.RecordAudit(summary, score)
	label := "persisted"
	if summary.AuditFailed {
		label = "audit_failed"
	}
	metrics.BusinessesTotal.WithLabelValues(label).Inc()
	logger.Debug("business processed", "business", b.ID, "score", score, "issues", len(summary.Issues))
	return nil
}
