package run

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/logger"
	"github.com/bacalhau-project/shellwright/pkg/sshutils"
	"github.com/bacalhau-project/shellwright/pkg/table"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SessionFactory opens a not yet connected session for host
type SessionFactory func(host string) (*sshutils.Session, error)

// Runner runs one command on every configured host, one session per host
type Runner struct {
	config     *RunConfig
	newSession SessionFactory

	// OnHostDone, when set, is called from the host's goroutine as each host finishes.
	OnHostDone func(table.HostResult)
}

func NewRunner(config *RunConfig, newSession SessionFactory) (*Runner, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if newSession == nil {
		return nil, fmt.Errorf("session factory cannot be nil")
	}
	return &Runner{
		config:     config,
		newSession: newSession,
	}, nil
}

// Run returns one result per host in the order the hosts were given. A failing host
// does not stop the others. Progress is logged through the logger carried by ctx.
func (r *Runner) Run(ctx context.Context) []table.HostResult {
	results := make([]table.HostResult, len(r.config.Hosts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)
	for i, host := range r.config.Hosts {
		i, host := i, host
		g.Go(func() error {
			results[i] = r.runHost(gctx, host)
			if r.OnHostDone != nil {
				r.OnHostDone(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) runHost(ctx context.Context, host string) table.HostResult {
	start := time.Now()
	result := table.HostResult{Host: host}
	l := logger.FromContext(ctx).With(zap.String("host", host))

	session, err := r.newSession(host)
	if err != nil {
		result.Err = err
		return result
	}
	result.Port = session.Port
	defer func() {
		if err := session.Close(); err != nil {
			l.Debugf("Closing session failed: %v", err)
		}
	}()

	if err := session.Login(ctx); err != nil {
		result.Err = fmt.Errorf("login failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	out, err := session.Run(ctx, r.config.Command, r.config.RunOptions()...)
	result.Output = out
	result.Err = err
	result.Duration = time.Since(start)
	l.Debugf("Command finished in %v", result.Duration)
	return result
}

// Report writes the results: raw output for a single host, a table otherwise. It
// returns an error when any host failed.
func Report(w io.Writer, results []table.HostResult) error {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}

	if len(results) == 1 {
		if results[0].Err != nil {
			return results[0].Err
		}
		if results[0].Output != "" {
			fmt.Fprintln(w, results[0].Output)
		}
		return nil
	}

	t := table.NewResultTable(w)
	for _, res := range results {
		t.AddResult(res)
	}
	t.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d hosts failed", failed, len(results))
	}
	return nil
}
