package runner

import (
	"context"
	"io"
	"strings"
	"sync"
)

// FakeResult is what a Fake handler returns for one call.
type FakeResult struct {
	Stdout string
	Code   int
	Stderr string
	Err    error
}

// Call records one invocation seen by a Fake.
type Call struct {
	Path  string
	Args  []string
	Env   []string
	Stdin string
}

// Line renders the call as "path arg1 arg2".
func (c Call) Line() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Fake is an in-memory Runner for unit tests.
type Fake struct {
	// Handler decides the outcome of each call. A nil handler succeeds with
	// empty output.
	Handler func(c Call) FakeResult

	mu    sync.Mutex
	calls []Call
}

// NewFake returns a Fake using handler.
func NewFake(handler func(c Call) FakeResult) *Fake {
	return &Fake{Handler: handler}
}

func (f *Fake) Describe() string { return "fake" }

func (f *Fake) Run(ctx context.Context, c Cmd) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call := Call{Path: c.Path, Args: append([]string(nil), c.Args...), Env: append([]string(nil), c.Env...)}
	if c.Stdin != nil {
		b, err := io.ReadAll(c.Stdin)
		if err != nil {
			return err
		}
		call.Stdin = string(b)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	var res FakeResult
	if f.Handler != nil {
		res = f.Handler(call)
	}
	if res.Err != nil {
		return res.Err
	}
	if c.Stdout != nil && res.Stdout != "" {
		if _, err := io.WriteString(c.Stdout, res.Stdout); err != nil {
			return err
		}
	}
	if res.Code != 0 {
		return &ExitError{Cmd: c.String(), Code: res.Code, Stderr: res.Stderr}
	}
	return nil
}

// Calls returns a copy of every call seen so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns Call.Line for every call seen so far.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}
