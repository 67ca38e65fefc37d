// Package provision bootstraps the on-disk state the bot needs before it
// can start: the config directory, the secrets template and the default
// settings file. Provisioning is an ordered list of idempotent steps; the
// runner halts on the first failure and reports the failing step, instead
// of continuing past errors.
package provision

import (
	"context"
	"fmt"

	"bybot/logger"
)

// Step is a single idempotent provisioning action
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes provisioning steps in order
type Runner struct {
	steps []Step
	log   logger.Logger
}

// NewRunner creates a runner for the given ordered steps
func NewRunner(log logger.Logger, steps ...Step) *Runner {
	return &Runner{steps: steps, log: log}
}

// Run executes every step in order and stops at the first failure. The
// returned error names the failing step so the operator knows where the
// host was left.
func (r *Runner) Run(ctx context.Context) error {
	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("provisioning interrupted before step %q: %w", step.Name, err)
		}

		r.log.WithField("step", step.Name).
			Infof("provisioning step %d/%d", i+1, len(r.steps))

		if err := step.Run(ctx); err != nil {
			return fmt.Errorf("provisioning step %q failed: %w", step.Name, err)
		}
	}

	r.log.Info("provisioning complete")
	return nil
}
