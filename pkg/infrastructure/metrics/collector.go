package metrics

import (
	"errors"

	"github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"

	"supplychain/pkg/domain/model"
)

const (
	OutcomeAccepted         = "accepted"
	OutcomeNotFound         = "not_found"
	OutcomeUnauthorized     = "unauthorized"
	OutcomeInvalidState     = "invalid_state"
	OutcomeStoreUnavailable = "store_unavailable"
	OutcomeInvalidArgument  = "invalid_argument"
	OutcomeError            = "error"

	unknownTransition = "unknown"
)

// Collector counts transition outcomes from the event bus.
type Collector struct {
	transitions *prometheus.CounterVec
}

func NewCollector(registerer prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supplychain",
			Name:      "transitions_total",
			Help:      "Product transitions by kind and outcome.",
		}, []string{"transition", "outcome"}),
	}
	if err := registerer.Register(c.transitions); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) Subscribe(bus EventBus.Bus) error {
	if err := bus.Subscribe(model.ProductCreated{}.Type(), func(model.ProductCreated) {
		c.transitions.WithLabelValues(string(model.Create), OutcomeAccepted).Inc()
	}); err != nil {
		return err
	}
	if err := bus.Subscribe(model.ProductTransitioned{}.Type(), func(e model.ProductTransitioned) {
		c.transitions.WithLabelValues(string(e.Transition), OutcomeAccepted).Inc()
	}); err != nil {
		return err
	}
	return bus.Subscribe(model.TransitionRejected{}.Type(), func(e model.TransitionRejected) {
		c.transitions.WithLabelValues(transitionLabel(e.Transition), Outcome(e.Reason)).Inc()
	})
}

// transitionLabel keeps label values bounded when callers send arbitrary transition names.
func transitionLabel(kind model.TransitionKind) string {
	if _, ok := model.RuleFor(kind); !ok {
		return unknownTransition
	}
	return string(kind)
}

// Outcome names the error kind of a rejected transition.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, model.ErrProductNotFound):
		return OutcomeNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, model.ErrInvalidStateTransition):
		return OutcomeInvalidState
	case errors.Is(err, model.ErrStoreUnavailable):
		return OutcomeStoreUnavailable
	case errors.Is(err, model.ErrInvalidArgument):
		return OutcomeInvalidArgument
	default:
		return OutcomeError
	}
}
