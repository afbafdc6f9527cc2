// Package pipeline orchestrates the per-item stage machine over a batch of
// source URLs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dubclip/dubclip/internal/config"
	"github.com/dubclip/dubclip/internal/faults"
	"github.com/dubclip/dubclip/internal/ports"
	"github.com/dubclip/dubclip/internal/types"
	"github.com/dubclip/dubclip/internal/usecase"
)

// pool selects which worker budget a stage draws from. Encoding and
// transcription saturate CPU; fetching, translation and synthesis wait on
// remote services and tolerate more parallelism.
type pool int

const (
	poolLocal pool = iota
	poolNetwork
)

func stagePool(st types.Stage) pool {
	switch st {
	case types.StageIngested, types.StageTranslated, types.StageVoiced:
		return poolNetwork
	default:
		return poolLocal
	}
}

// Outcome is the per-URL result of a batch run.
type Outcome struct {
	URL         string
	ItemID      string
	Completed   bool
	FailedStage types.Stage
	Err         error
}

// Summary aggregates a batch.
type Summary struct {
	Outcomes []Outcome
}

func (s Summary) Completed() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Completed {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int { return len(s.Outcomes) - s.Completed() }

type Orchestrator struct {
	uc    usecase.Usecase
	store ports.Store
	cfg   *config.Config
	log   *slog.Logger

	localSem chan struct{}
	netSem   chan struct{}
}

func New(uc usecase.Usecase, store ports.Store, cfg *config.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		uc:       uc,
		store:    store,
		cfg:      cfg,
		log:      log,
		localSem: make(chan struct{}, cfg.Workers.Local),
		netSem:   make(chan struct{}, cfg.Workers.Network),
	}
}

// ProcessBatch drives every URL through the full stage machine. Items fail
// independently; the summary reports each outcome. A URL repeated within the
// batch is processed once and its outcome shared, so it cannot race itself
// past the ingest dedupe.
func (o *Orchestrator) ProcessBatch(ctx context.Context, urls []string) Summary {
	outcomes := make([]Outcome, len(urls))
	first := make(map[string]int, len(urls))
	var dups [][2]int
	var wg sync.WaitGroup
	for i, url := range urls {
		if j, seen := first[url]; seen {
			dups = append(dups, [2]int{i, j})
			continue
		}
		first[url] = i
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			outcomes[i] = o.processOne(ctx, url)
		}(i, url)
	}
	wg.Wait()
	for _, d := range dups {
		outcomes[d[0]] = outcomes[d[1]]
	}

	s := Summary{Outcomes: outcomes}
	o.log.Info("batch finished", "total", len(urls), "completed", s.Completed(), "failed", s.Failed())
	return s
}

func (o *Orchestrator) processOne(ctx context.Context, url string) Outcome {
	out := Outcome{URL: url}

	var it *types.Item
	err := o.runStageFn(ctx, types.StageIngested, func(ctx context.Context) error {
		var err error
		it, err = o.uc.Ingest(ctx, url)
		return err
	})
	if err != nil {
		out.FailedStage = types.StageIngested
		out.Err = err
		return out
	}
	out.ItemID = it.ID

	unlock, err := o.lock(it.ID)
	if err != nil {
		out.Err = err
		return out
	}
	defer unlock()

	for _, st := range types.Order()[1:] {
		// Cancellation takes effect between stages, never mid-encode.
		if ctx.Err() != nil {
			out.Err = ctx.Err()
			return out
		}
		if it.StageState(st) == types.StateDone {
			continue
		}

		st := st
		err := o.runStageFn(ctx, st, func(ctx context.Context) error {
			return o.uc.RunStage(ctx, it, st)
		})
		if err != nil {
			o.recordFailure(ctx, it, st, err)
			out.FailedStage = st
			out.Err = err
			return out
		}
		o.recordSuccess(ctx, it, st)
	}

	out.Completed = true
	return out
}

// RegenerateShorts drops an item's exported clips and runs the shorts stage
// again, picking up the current platform templates.
func (o *Orchestrator) RegenerateShorts(ctx context.Context, itemID string) error {
	it, err := o.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	unlock, err := o.lock(it.ID)
	if err != nil {
		return err
	}
	defer unlock()

	for name := range o.cfg.Platforms {
		if err := o.store.DeleteShorts(ctx, it.ID, name); err != nil {
			return err
		}
	}
	err = o.runStageFn(ctx, types.StageShorted, func(ctx context.Context) error {
		return o.uc.RunStage(ctx, it, types.StageShorted)
	})
	if err != nil {
		o.recordFailure(ctx, it, types.StageShorted, err)
		return err
	}
	o.recordSuccess(ctx, it, types.StageShorted)
	return nil
}

// runStageFn wraps one stage with its worker pool slot, timeout, and the
// retry loop for transient errors.
func (o *Orchestrator) runStageFn(ctx context.Context, st types.Stage, fn func(context.Context) error) error {
	sem := o.localSem
	if stagePool(st) == poolNetwork {
		sem = o.netSem
	}
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()

	attempts := o.cfg.Workers.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		stageCtx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout())
		err = fn(stageCtx)
		cancel()
		if err == nil || attempt >= attempts || !faults.IsTransient(err) {
			return err
		}
		backoff := time.Duration(attempt) * o.cfg.RetryBackoff()
		o.log.Warn("stage failed, retrying",
			"stage", st, "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) recordSuccess(ctx context.Context, it *types.Item, st types.Stage) {
	if it.Stages == nil {
		it.Stages = make(map[types.Stage]types.StageState)
	}
	it.Stages[st] = types.StateDone
	if it.FailedStage == st {
		it.FailedStage = ""
		it.FailureReason = ""
	}
	if err := o.store.UpdateItem(ctx, it); err != nil {
		o.log.Warn("persist stage state failed", "item", it.ID, "stage", st, "error", err)
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, it *types.Item, st types.Stage, ferr error) {
	if it.Stages == nil {
		it.Stages = make(map[types.Stage]types.StageState)
	}
	it.Stages[st] = types.StateFailed
	it.FailedStage = st
	it.FailureReason = ferr.Error()
	o.log.Error("stage failed",
		"item", it.ID, "stage", st, "kind", faults.KindOf(ferr), "error", ferr)
	if err := o.store.UpdateItem(ctx, it); err != nil {
		o.log.Warn("persist stage failure failed", "item", it.ID, "stage", st, "error", err)
	}
}

// lock takes the item's advisory lock file so concurrent runs cannot process
// the same item twice.
func (o *Orchestrator) lock(itemID string) (func(), error) {
	dir := filepath.Join(o.cfg.Paths.Data, "locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, itemID+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("item %s is locked by another run", itemID)
		}
		return nil, err
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return func() { os.Remove(path) }, nil
}
