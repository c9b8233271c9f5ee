package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/ciclogit/opskernel/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// events holds per-kind looplab/fsm event tables derived from the domain
// transition tables. Transitions are addressed by target state, so each
// destination becomes one event whose sources are every state that may
// reach it.
var events = buildEvents()

func buildEvents() map[domain.EntityKind][]loopfsm.EventDesc {
	out := make(map[domain.EntityKind][]loopfsm.EventDesc, len(domain.Machines))
	for kind, machine := range domain.Machines {
		sources := make(map[domain.State][]string)
		order := make([]domain.State, 0)

		for src, targets := range machine.Transitions {
			for _, dst := range targets {
				if _, exists := sources[dst]; !exists {
					order = append(order, dst)
				}
				sources[dst] = append(sources[dst], string(src))
			}
		}

		descs := make([]loopfsm.EventDesc, 0, len(order))
		for _, dst := range order {
			descs = append(descs, loopfsm.EventDesc{
				Name: eventName(dst),
				Src:  sources[dst],
				Dst:  string(dst),
			})
		}
		out[kind] = descs
	}
	return out
}

func eventName(dst domain.State) string {
	return "goto:" + string(dst)
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the entity's current state, because looplab/fsm tracks current state
// internally.
type Validator struct{}

// New creates the FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks whether current→target is legal for the kind and returns
// the resulting state. Any pair outside the machine's table, including
// attempts out of terminal states and unlisted self-loops, yields a
// domain.InvalidTransitionError.
func (v *Validator) Apply(ctx context.Context, kind domain.EntityKind, current, target domain.State) (domain.State, error) {
	descs, ok := events[kind]
	if !ok {
		return "", &domain.InvalidTransitionError{Kind: kind, From: current, To: target}
	}

	machine := loopfsm.NewFSM(string(current), descs, nil)

	if err := machine.Event(ctx, eventName(target)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.InvalidTransitionError{Kind: kind, From: current, To: target}
		}
		return "", err
	}

	return domain.State(machine.Current()), nil
}
