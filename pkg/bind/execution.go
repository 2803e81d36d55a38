package bind

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// State is the position of an entity in the execution pipeline.
type State int

// Pipeline states. Completed and Failed are terminal for one run.
const (
	StateCreated State = iota
	StateValidating
	StateAuthorizing
	StatePerforming
	StateCompleted
	StateFailed
)

var stateNames = [...]string{"created", "validating", "authorizing", "performing", "completed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// State returns the current pipeline state.
func (e *Entity) State() State { return e.state }

// RunID returns the id of the last pipeline run, or "" before the first.
func (e *Entity) RunID() string { return e.runID }

// Call runs validate, authorize and perform. Invalid input returns
// (false, nil) with Errors populated and perform not invoked. An entity that
// is not permitted returns a *NotPermittedError; perform errors are returned
// unchanged.
func (e *Entity) Call(ctx context.Context) (bool, error) {
	invalid, err := e.run(ctx)
	if invalid {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CallOrRaise is Call with validation failures returned as a
// *ValidationError.
func (e *Entity) CallOrRaise(ctx context.Context) error {
	_, err := e.run(ctx)
	return err
}

// run executes the pipeline. invalid is true only when the validation step
// failed, so errors from perform are never mistaken for invalid input.
func (e *Entity) run(ctx context.Context) (invalid bool, err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return false, err
	}
	e.runID = id.String()
	log := e.logger.With(slog.String("schema", e.schema.name), slog.String("run", e.runID))

	e.transition(log, StateValidating)
	if err := e.Validate(); err != nil {
		e.transition(log, StateFailed)
		log.Debug("validation failed", slog.Any("errors", map[string][]string(e.errors)))
		return true, err
	}

	e.transition(log, StateAuthorizing)
	if err := e.Permit(); err != nil {
		e.transition(log, StateFailed)
		log.Warn("entity not permitted")
		return false, err
	}

	e.transition(log, StatePerforming)
	if err := e.perform(ctx); err != nil {
		e.transition(log, StateFailed)
		log.Error("perform failed", slog.Any("error", err))
		return false, err
	}
	e.transition(log, StateCompleted)
	return false, nil
}

func (e *Entity) perform(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch {
	case e.schema.perform != nil:
		return e.schema.perform(ctx, e)
	case e.model != nil:
		return e.writeModel(ctx)
	}
	return nil
}

func (e *Entity) transition(log *slog.Logger, to State) {
	log.Debug("state", slog.String("from", e.state.String()), slog.String("to", to.String()))
	e.state = to
}
