package collector

import (
	"context"
	"errors"
	"sync"

	"github.com/nao1215/privpath/internal/runner"
)

// fakeRunner returns canned results keyed by the command string.
// Unknown commands behave like a missing executable.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]runner.Result
	calls   []runner.Command
}

func newFakeRunner(results map[string]runner.Result) *fakeRunner {
	return &fakeRunner{results: results}
}

// Run implements runner.Runner.
func (f *fakeRunner) Run(_ context.Context, cmd runner.Command) runner.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	if res, ok := f.results[cmd.String()]; ok {
		res.Command = cmd.String()
		return res
	}
	return runner.Result{
		Command:  cmd.String(),
		ExitCode: runner.ExitNotFound,
		Stderr:   "executable file not found in $PATH",
	}
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeResolver returns canned answers keyed by hostname.
type fakeResolver struct {
	answers map[string][]string
	queried []string
}

// LookupHost implements Resolver.
func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	f.queried = append(f.queried, host)
	addrs, ok := f.answers[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}
