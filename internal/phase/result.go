// SPDX-License-Identifier: MPL-2.0

package phase

import (
	"time"

	"github.com/invowk/buildbench/internal/matrix"
)

const (
	// CleanBuild builds a fresh workspace from scratch.
	CleanBuild Name = "clean_build"
	// SecondBuild builds again without changes.
	SecondBuild Name = "second_build"
	// ModifiedBuild builds after the payload constant changed.
	ModifiedBuild Name = "modified_build"
	// HotpatchServe measures serve readiness and hot-patch latency.
	HotpatchServe Name = "hotpatch_serve"

	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

type (
	// Name identifies a phase.
	Name string

	// Outcome is the result of a phase or scenario.
	Outcome string

	// Result records one phase. Durations are serialized in nanoseconds.
	Result struct {
		Name      Name          `json:"name"`
		Outcome   Outcome       `json:"outcome"`
		Duration  time.Duration `json:"duration_ns"`
		Reason    string        `json:"reason,omitempty"`
		ErrorKind ErrorKind     `json:"error_kind,omitempty"`
		// ReadyDuration is the time from spawning the serve process until
		// the program announced readiness (hot-patch phase only).
		ReadyDuration time.Duration `json:"ready_duration_ns,omitempty"`
		// PatchDuration is the time from the source edit until the running
		// program reported the new value (hot-patch phase only).
		PatchDuration time.Duration `json:"patch_duration_ns,omitempty"`
	}

	// ScenarioResult records one scenario. Phases holds exactly the
	// phases applicable to the scenario, in execution order.
	ScenarioResult struct {
		Slug       string          `json:"slug"`
		Scenario   matrix.Scenario `json:"scenario"`
		Phases     []Result        `json:"phases"`
		Outcome    Outcome         `json:"outcome"`
		Reason     string          `json:"reason,omitempty"`
		ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
		StartedAt  time.Time       `json:"started_at"`
		FinishedAt time.Time       `json:"finished_at"`
	}
)

// Applicable returns the phases run for sc, in order.
func Applicable(sc matrix.Scenario) []Name {
	names := []Name{CleanBuild, SecondBuild, ModifiedBuild}
	if sc.HotpatchEnabled() {
		names = append(names, HotpatchServe)
	}
	return names
}

// Succeeded reports whether every phase succeeded.
func (r ScenarioResult) Succeeded() bool { return r.Outcome == OutcomeSuccess }

// Phase returns the result recorded for name.
func (r ScenarioResult) Phase(name Name) (Result, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Result{}, false
}

// Failed builds the result of a scenario that failed before its first
// phase ran, typically because its workspace could not be created.
func Failed(sc matrix.Scenario, err error, startedAt, finishedAt time.Time) ScenarioResult {
	res := ScenarioResult{
		Slug:       sc.Slug(),
		Scenario:   sc,
		Outcome:    OutcomeFailure,
		Reason:     err.Error(),
		ErrorKind:  Classify(err),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	for _, name := range Applicable(sc) {
		res.Phases = append(res.Phases, skipped(name))
	}
	return res
}

func skipped(name Name) Result {
	return Result{Name: name, Outcome: OutcomeSkipped, Reason: "not run after an earlier failure"}
}
