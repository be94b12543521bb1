package model

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrUnauthorized           = errors.New("actor lacks required capability")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrInvalidArgument        = errors.New("invalid argument")
)

type UnauthorizedError struct {
	Actor      string
	Capability Capability
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %q lacks capability %q", e.Actor, e.Capability)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

type InvalidStateTransitionError struct {
	ProductID  int64
	Transition TransitionKind
	Expected   ProductState
	Actual     ProductState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s product %d: expected state %s, actual state %s",
		e.Transition, e.ProductID, e.Expected, e.Actual)
}

func (e *InvalidStateTransitionError) Unwrap() error { return ErrInvalidStateTransition }
