package search

import (
	"context"
	"fmt"
	"strings"

	fserrors "fsgate/internal/shared/errors"
	"fsgate/internal/shared/logging"
)

// Match is the normalised unit every strategy returns.
type Match struct {
	FilePath   string `json:"filePath"`
	LineNumber int    `json:"lineNumber"`
	Line       string `json:"line"`
}

// Request describes one content search. Dir is absolute; Include is an
// optional glob limiting which files are searched.
type Request struct {
	Pattern string
	Dir     string
	Include string
}

// Strategy is one way of running a content search.
type Strategy interface {
	Name() string
	// Available reports whether the strategy can run for req on this host.
	Available(ctx context.Context, req Request) bool
	// Search returns matches, or an error that sends the cascade to the
	// next strategy.
	Search(ctx context.Context, req Request) ([]Match, error)
}

// Outcome reports which strategy produced the matches.
type Outcome struct {
	Matches  []Match
	Strategy string
}

// Cascade tries strategies in order and returns the first result that was
// produced without error.
type Cascade struct {
	strategies []Strategy
	logger     logging.Logger
}

// NewCascade builds a cascade from an explicit strategy list.
func NewCascade(logger logging.Logger, strategies ...Strategy) *Cascade {
	filtered := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Cascade{strategies: filtered, logger: logging.OrNop(logger)}
}

// Options toggles the external strategies of the default cascade.
type Options struct {
	Runner            CommandRunner
	Logger            logging.Logger
	DisableGitGrep    bool
	DisableSystemGrep bool
}

// NewDefaultCascade builds git grep, system grep and the in-process scan, in
// that order.
func NewDefaultCascade(opts Options) *Cascade {
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	logger := logging.OrNop(opts.Logger)

	var strategies []Strategy
	if !opts.DisableGitGrep {
		strategies = append(strategies, NewGitGrep(runner))
	}
	if !opts.DisableSystemGrep {
		strategies = append(strategies, NewSystemGrep(runner))
	}
	strategies = append(strategies, NewScan(logger))
	return NewCascade(logger, strategies...)
}

// Strategies lists strategy names in cascade order.
func (c *Cascade) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Search runs the cascade. Only total exhaustion is an error.
func (c *Cascade) Search(ctx context.Context, req Request) (Outcome, error) {
	var failures []string
	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if !strategy.Available(ctx, req) {
			c.logger.Debug("grep strategy %s unavailable for %s", strategy.Name(), req.Dir)
			continue
		}
		matches, err := strategy.Search(ctx, req)
		if err != nil {
			c.logger.Debug("grep strategy %s failed, falling back: %v", strategy.Name(), err)
			failures = append(failures, fmt.Sprintf("%s: %v", strategy.Name(), err))
			continue
		}
		return Outcome{Matches: matches, Strategy: strategy.Name()}, nil
	}

	raw := "no search strategy available"
	if len(failures) > 0 {
		raw = strings.Join(failures, "; ")
	}
	return Outcome{}, fserrors.New(fserrors.KindGrepFailure, "Error during grep search", "Error during grep search operation: "+raw)
}
