package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/repository"
)

// Service orchestrates sync cycles across registered resources.
type Service struct {
	source      PageSource
	writer      PageWriter
	checkpoints repository.CheckpointStore
	logger      *slog.Logger
	limit       int
	now         func() time.Time
	newID       func() string
}

// NewService creates a sync Service. limit bounds how many resources
// sync concurrently within a cycle.
func NewService(source PageSource, writer PageWriter, checkpoints repository.CheckpointStore, logger *slog.Logger, limit int) *Service {
	if limit < 1 {
		limit = 1
	}
	return &Service{
		source:      source,
		writer:      writer,
		checkpoints: checkpoints,
		logger:      logger,
		limit:       limit,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// RunCycle syncs the given resources, or every registered resource
// when names is empty. Resources fail independently; one resource's
// error never stops the others. Cancellation stops scheduling new
// resources and marks the report cancelled.
func (s *Service) RunCycle(ctx context.Context, names ...string) (*CycleReport, error) {
	resources, err := s.resolve(names)
	if err != nil {
		return nil, err
	}

	report := &CycleReport{
		ID:        s.newID(),
		StartedAt: s.now().UTC(),
		Resources: make([]ResourceOutcome, len(resources)),
	}

	s.logger.Info("sync cycle starting", "cycle", report.ID, "resources", len(resources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)

	for i, res := range resources {
		if ctx.Err() != nil {
			report.Cancelled = true
			report.Resources[i] = ResourceOutcome{Resource: res.Name, Status: StatusPending}
			continue
		}
		g.Go(func() error {
			report.Resources[i] = s.syncResource(gctx, res)
			return nil
		})
	}
	g.Wait()

	report.Duration = s.now().UTC().Sub(report.StartedAt)
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	s.logger.Info("sync cycle finished",
		"cycle", report.ID,
		"written", report.TotalWritten(),
		"failed", report.TotalFailed(),
		"duration", report.Duration,
		"cancelled", report.Cancelled)
	return report, nil
}

func (s *Service) resolve(names []string) ([]resource.Resource, error) {
	if len(names) == 0 {
		return resource.Registry(), nil
	}
	resources := make([]resource.Resource, 0, len(names))
	for _, name := range names {
		res, err := resource.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, name)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// syncResource runs one resource through the fetch and write
// lifecycle. The checkpoint attempt instant is captured before the
// first page request so records updated mid-sync are refetched next
// cycle rather than missed.
func (s *Service) syncResource(ctx context.Context, res resource.Resource) ResourceOutcome {
	outcome := ResourceOutcome{Resource: res.Name, Status: StatusPending}
	started := s.now()
	attemptAt := started.UTC()

	var since *time.Time
	if res.SinceParam != "" {
		cp, err := s.checkpoints.Get(ctx, res.Name)
		if err == nil && cp.LastSuccess != nil {
			since = cp.LastSuccess
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			outcome.Status = StatusFailed
			outcome.Error = fmt.Sprintf("failed to load checkpoint: %v", err)
			outcome.Retryable = true
			return outcome
		}
	}

	outcome.Status = StatusFetching
	iter := s.source.Pages(res, since)

	for iter.Next(ctx) {
		outcome.Status = StatusWriting
		page := iter.Page()
		outcome.Fetched += len(page)

		result, err := s.writer.WritePage(ctx, res, page)
		outcome.Written += result.Written
		outcome.Failed += len(result.Failures)
		if err != nil {
			outcome.Pages = iter.Pages()
			outcome.Status = s.partialOrFailed(outcome)
			outcome.Error = err.Error()
			outcome.Retryable = true
			s.finishCheckpoint(ctx, res.Name, attemptAt, false)
			outcome.Duration = s.now().Sub(started)
			return outcome
		}
		outcome.Status = StatusFetching
	}
	outcome.Pages = iter.Pages()

	if err := iter.Err(); err != nil {
		outcome.Status = s.partialOrFailed(outcome)
		outcome.Error = err.Error()
		outcome.Retryable = !isTerminal(err)
		s.finishCheckpoint(ctx, res.Name, attemptAt, false)
		outcome.Duration = s.now().Sub(started)
		s.logger.Warn("resource sync failed",
			"resource", res.Name, "status", outcome.Status, "error", err)
		return outcome
	}

	// A complete fetch with per-record write failures is not a
	// success: last_success stays put so the next cycle re-fetches
	// the same window and retries the rejected records.
	if outcome.Failed > 0 {
		outcome.Status = StatusPartial
		outcome.Retryable = true
		s.finishCheckpoint(ctx, res.Name, attemptAt, false)
		outcome.Duration = s.now().Sub(started)
		s.logger.Warn("resource synced with write failures",
			"resource", res.Name, "written", outcome.Written, "failed", outcome.Failed)
		return outcome
	}

	outcome.Status = StatusSucceeded
	s.finishCheckpoint(ctx, res.Name, attemptAt, true)
	outcome.Duration = s.now().Sub(started)

	s.logger.Info("resource synced",
		"resource", res.Name,
		"fetched", outcome.Fetched,
		"written", outcome.Written,
		"failed", outcome.Failed,
		"pages", outcome.Pages)
	return outcome
}

// partialOrFailed distinguishes a fetch that delivered some records
// before failing from one that delivered nothing.
func (s *Service) partialOrFailed(outcome ResourceOutcome) Status {
	if outcome.Written > 0 {
		return StatusPartial
	}
	return StatusFailed
}

// finishCheckpoint records the attempt. Every attempt advances
// last_sync; only a fully successful sync advances last_success, so
// a later retry refetches everything since the last good sync.
func (s *Service) finishCheckpoint(ctx context.Context, name string, attemptAt time.Time, success bool) {
	if success {
		if err := s.checkpoints.MarkSuccess(ctx, name, attemptAt); err != nil {
			s.logger.Error("failed to record checkpoint success", "resource", name, "error", err)
		}
		return
	}
	if err := s.checkpoints.MarkAttempt(ctx, name, attemptAt); err != nil {
		s.logger.Error("failed to record checkpoint attempt", "resource", name, "error", err)
	}
}

// isTerminal classifies the error without coupling to the transport
// package; any wrapped error exposing Terminal() bool qualifies.
func isTerminal(err error) bool {
	var terminal interface{ Terminal() bool }
	return errors.As(err, &terminal) && terminal.Terminal()
}
