package subscription

import (
	"context"

	"go.uber.org/zap"
)

type compensation struct {
	name string
	undo func(context.Context) error
}

// saga collects undo actions as the signup sequence performs effectful
// steps against external collaborators. On a later failure the actions
// run in reverse order. Undo failures are logged, never surfaced; there
// are no transactions across providers, only best effort.
type saga struct {
	steps []compensation
}

func (s *saga) add(name string, undo func(context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

func (s *saga) rollback(ctx context.Context, logger *zap.Logger) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			logger.Error("Compensation failed",
				zap.String("Step", step.name),
				zap.Error(err),
			)
		}
	}
}
