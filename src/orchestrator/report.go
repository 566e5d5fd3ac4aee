package orchestrator

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Status is the outcome of a target or a whole run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	StatusPlanned Status = "planned"
)

// Exit codes for a finished run.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 2
)

// StepResult records one step of a target's sequence.
type StepResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, failed, skipped, warning, planned
	Detail string `json:"detail,omitempty"`
}

// TargetReport is the outcome for a single target.
type TargetReport struct {
	Target   string       `json:"target"`
	SetPath  string       `json:"set_path,omitempty"`
	Status   Status       `json:"status"`
	Steps    []StepResult `json:"steps,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
	Bytes    int64        `json:"bytes,omitempty"`
	Error    string       `json:"error,omitempty"`

	err error
}

// Err returns the failure cause, if any.
func (t TargetReport) Err() error { return t.err }

func (t *TargetReport) step(name, status, detail string) {
	t.Steps = append(t.Steps, StepResult{Name: name, Status: status, Detail: detail})
}

func (t *TargetReport) warn(msg string) {
	t.Warnings = append(t.Warnings, msg)
	t.step("warning", "warning", msg)
}

func (t *TargetReport) fail(name string, err error) {
	t.step(name, "failed", err.Error())
	t.err = multierror.Append(t.err, err)
}

func (t *TargetReport) finish() {
	if t.err != nil {
		t.Status = StatusFailure
		t.Error = t.err.Error()
		if me, ok := t.err.(*multierror.Error); ok && len(me.Errors) == 1 {
			t.Error = me.Errors[0].Error()
		}
		return
	}
	if t.Status == "" {
		t.Status = StatusSuccess
	}
}

// Report is the outcome of a run.
type Report struct {
	RunID     string         `json:"run_id"`
	Action    Action         `json:"action"`
	Timestamp time.Time      `json:"timestamp"`
	DryRun    bool           `json:"dry_run,omitempty"`
	State     State          `json:"state"`
	Status    Status         `json:"status"`
	Targets   []TargetReport `json:"targets"`
	Error     string         `json:"error,omitempty"`

	err error
}

// Err aggregates every target failure, or the validation failure.
func (r Report) Err() error { return r.err }

// Failed returns the reports of failed targets.
func (r Report) Failed() []TargetReport {
	var out []TargetReport
	for _, t := range r.Targets {
		if t.Status == StatusFailure {
			out = append(out, t)
		}
	}
	return out
}

// ExitCode maps Status to a process exit code.
func (r Report) ExitCode() int {
	switch r.Status {
	case StatusSuccess, StatusPlanned:
		return ExitOK
	case StatusPartial:
		return ExitPartial
	}
	return ExitFailure
}

// aggregate derives the run status from the target reports.
func (r *Report) aggregate() {
	failed := 0
	var all *multierror.Error
	for _, t := range r.Targets {
		if t.Status == StatusFailure {
			failed++
			all = multierror.Append(all, fmt.Errorf("%s: %w", t.Target, t.err))
		}
	}
	switch {
	case len(r.Targets) == 0:
		r.Status = StatusFailure
	case failed == 0 && r.DryRun:
		r.Status = StatusPlanned
	case failed == 0:
		r.Status = StatusSuccess
	case failed == len(r.Targets):
		r.Status = StatusFailure
	default:
		r.Status = StatusPartial
	}
	if err := all.ErrorOrNil(); err != nil {
		r.err = err
		r.Error = err.Error()
	}
}
