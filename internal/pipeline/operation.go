// ABOUTME: The five-phase contract every wallet action implements
// ABOUTME: check -> createInteraction -> prepare -> requestAuthorization -> execute, bound to arguments as a Step

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/wallet-gateway/internal/authz"
	"github.com/2389/wallet-gateway/internal/interaction"
)

// ErrMissingApprovalPayload means an approval arrived without the data the
// operation needs. It signals a UI contract violation and is not retryable.
var ErrMissingApprovalPayload = errors.New("approval is missing its payload")

// MissingPayload wraps ErrMissingApprovalPayload with the method and field.
func MissingPayload(method, field string) error {
	return fmt.Errorf("%w: %s approval has no %q", ErrMissingApprovalPayload, method, field)
}

// Prepared is the output of the prepare phase. Display is shown to the user,
// Exec is handed to execute, Persistence names where an approval is stored.
type Prepared[D, E any] struct {
	Display     D
	Exec        E
	Persistence *authz.Persistence
}

// Operation is one wallet action. A is its arguments, D its display data,
// E its execution data and R its result.
type Operation[A, D, E, R any] interface {
	// Method is the wire name of the action.
	Method() string
	// Check is a side-effect free fast path. When it reports ok, every
	// later phase is skipped and the result is returned as is.
	Check(ctx context.Context, args A) (result R, ok bool, err error)
	// Interaction describes the progress record, from raw arguments only.
	Interaction(args A) interaction.Start
	// Prepare runs the business logic ahead of authorization.
	Prepare(ctx context.Context, args A) (Prepared[D, E], error)
	// Authorized folds the approval's item response into the execution data.
	Authorized(exec E, resp authz.ItemResponse) (E, error)
	// Execute performs the effectful action.
	Execute(ctx context.Context, exec E, h *interaction.Handle) (R, error)
}

// Step is an Operation bound to its arguments with the types erased, so a
// batch can hold heterogeneous actions.
type Step interface {
	Method() string

	check(ctx context.Context) (any, bool, error)
	start() interaction.Start
	prepare(ctx context.Context) error
	item(id string) (authz.Item, error)
	authorized(resp authz.ItemResponse) error
	execute(ctx context.Context, h *interaction.Handle) (any, error)
}

// Bind ties op to args.
func Bind[A, D, E, R any](op Operation[A, D, E, R], args A) Step {
	return &boundStep[A, D, E, R]{op: op, args: args}
}

type boundStep[A, D, E, R any] struct {
	op       Operation[A, D, E, R]
	args     A
	prepared Prepared[D, E]
}

func (s *boundStep[A, D, E, R]) Method() string { return s.op.Method() }

func (s *boundStep[A, D, E, R]) check(ctx context.Context) (any, bool, error) {
	return s.op.Check(ctx, s.args)
}

func (s *boundStep[A, D, E, R]) start() interaction.Start {
	return s.op.Interaction(s.args)
}

func (s *boundStep[A, D, E, R]) prepare(ctx context.Context) error {
	p, err := s.op.Prepare(ctx, s.args)
	if err != nil {
		return err
	}
	s.prepared = p
	return nil
}

func (s *boundStep[A, D, E, R]) item(id string) (authz.Item, error) {
	params, err := json.Marshal(s.prepared.Display)
	if err != nil {
		return authz.Item{}, fmt.Errorf("encoding %s display data: %w", s.op.Method(), err)
	}
	return authz.Item{
		ID:          id,
		Method:      s.op.Method(),
		Params:      params,
		Persistence: s.prepared.Persistence,
	}, nil
}

func (s *boundStep[A, D, E, R]) authorized(resp authz.ItemResponse) error {
	exec, err := s.op.Authorized(s.prepared.Exec, resp)
	if err != nil {
		return err
	}
	s.prepared.Exec = exec
	return nil
}

func (s *boundStep[A, D, E, R]) execute(ctx context.Context, h *interaction.Handle) (any, error) {
	return s.op.Execute(ctx, s.prepared.Exec, h)
}
