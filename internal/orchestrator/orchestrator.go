// SPDX-License-Identifier: MPL-2.0

// Package orchestrator runs a list of scenarios one after another: create a
// workspace, run the phases, record the result, destroy the workspace.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/buildbench/internal/logging"
	"github.com/invowk/buildbench/internal/matrix"
	"github.com/invowk/buildbench/internal/phase"
	"github.com/invowk/buildbench/internal/resultlog"
	"github.com/invowk/buildbench/internal/workspace"
)

type (
	// Workspaces creates and destroys scenario workspaces.
	Workspaces interface {
		Prepare() error
		Create(sc matrix.Scenario) (*workspace.Workspace, error)
		Destroy(ws *workspace.Workspace) error
	}

	// Sequencer runs the phases of a scenario.
	Sequencer interface {
		Run(ctx context.Context, sc matrix.Scenario, root string) phase.ScenarioResult
	}

	// ResultLog receives results as they complete.
	ResultLog interface {
		Append(res phase.ScenarioResult) error
		Close(s resultlog.Summary) error
		Path() string
	}

	// Summary describes a finished (or aborted) run.
	Summary struct {
		Total       int
		Succeeded   int
		Failed      int
		Interrupted bool
		LogPath     string
	}

	// Orchestrator drives a run.
	Orchestrator struct {
		workspaces Workspaces
		sequencer  Sequencer
		log        ResultLog
		logger     *log.Logger
		now        func() time.Time
		// OnResult, if set, is called after each result is recorded.
		OnResult func(res phase.ScenarioResult)
	}
)

// New creates an Orchestrator.
func New(ws Workspaces, seq Sequencer, rl ResultLog, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		workspaces: ws,
		sequencer:  seq,
		log:        rl,
		logger:     logging.OrDiscard(logger),
		now:        time.Now,
	}
}

// Run executes scenarios strictly in order. Scenario failures are recorded
// and the run continues; only a base directory problem or a result log
// write failure aborts it. Cancelling ctx stops the run once the current
// scenario has been recorded and its workspace removed. The log is closed
// on every path.
func (o *Orchestrator) Run(ctx context.Context, scenarios []matrix.Scenario) (sum Summary, err error) {
	sum.LogPath = o.log.Path()
	defer func() {
		closeErr := o.log.Close(resultlog.Summary{
			Total:       sum.Total,
			Succeeded:   sum.Succeeded,
			Failed:      sum.Failed,
			Interrupted: sum.Interrupted,
		})
		if closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := o.workspaces.Prepare(); err != nil {
		return sum, err
	}

	for i, sc := range scenarios {
		if ctx.Err() != nil {
			sum.Interrupted = true
			o.logger.Warn("run interrupted", "remaining", len(scenarios)-i)
			return sum, nil
		}

		o.logger.Info("scenario started", "n", fmt.Sprintf("%d/%d", i+1, len(scenarios)), "scenario", sc.Describe())
		res, err := o.runScenario(ctx, sc)
		if err != nil {
			return sum, err
		}

		sum.Total++
		if res.Succeeded() {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		if o.OnResult != nil {
			o.OnResult(res)
		}
	}
	if ctx.Err() != nil {
		sum.Interrupted = true
	}
	return sum, nil
}

// runScenario acquires a workspace, runs the phases and records the result
// before the workspace is torn down.
func (o *Orchestrator) runScenario(ctx context.Context, sc matrix.Scenario) (phase.ScenarioResult, error) {
	started := o.now().UTC()
	ws, err := o.workspaces.Create(sc)
	if err != nil {
		if errors.Is(err, workspace.ErrBaseDir) {
			return phase.ScenarioResult{}, err
		}
		o.logger.Warn("workspace creation failed", "scenario", sc.Slug(), "err", err)
		res := phase.Failed(sc, err, started, o.now().UTC())
		return res, o.record(res)
	}
	defer func() {
		if err := o.workspaces.Destroy(ws); err != nil {
			o.logger.Warn("workspace teardown failed", "scenario", sc.Slug(), "err", err)
		}
	}()

	res := o.sequencer.Run(ctx, sc, ws.Root)
	return res, o.record(res)
}

func (o *Orchestrator) record(res phase.ScenarioResult) error {
	if err := o.log.Append(res); err != nil {
		return err
	}
	o.logger.Info("scenario finished", "scenario", res.Slug, "outcome", res.Outcome, "kind", res.ErrorKind)
	return nil
}
