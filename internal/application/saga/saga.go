// Package saga runs multi-step workflows whose steps cannot share a
// transaction. Each completed step may register an Undo that is replayed in
// reverse order when a later step fails.
package saga

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Step is one unit of a workflow. Undo may be nil.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// Run executes steps in order. When a step fails, the Undo of every step that
// already completed runs in reverse. Undo failures are logged and the error of
// the failed step is returned unchanged.
func Run(ctx context.Context, steps ...Step) error {
	for i, step := range steps {
		if err := step.Do(ctx); err != nil {
			compensate(ctx, step.Name, steps[:i])
			return err
		}
	}
	return nil
}

func compensate(ctx context.Context, failed string, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx); err != nil {
			log.Error().
				Err(err).
				Str("step", step.Name).
				Str("failed_step", failed).
				Msg("saga compensation failed")
		}
	}
}
