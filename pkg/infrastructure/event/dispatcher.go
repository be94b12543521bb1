// Package event fans domain events out over an in-process bus. Each event is published on the
// topic named by its Type, so subscribers take the concrete event type as their argument.
package event

import (
	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"

	"supplychain/pkg/domain/model"
	"supplychain/pkg/domain/service"
)

var _ service.EventDispatcher = (*BusDispatcher)(nil)

type BusDispatcher struct {
	bus EventBus.Bus
}

func NewBusDispatcher(bus EventBus.Bus) *BusDispatcher {
	return &BusDispatcher{bus: bus}
}

func (d *BusDispatcher) Dispatch(event service.Event) error {
	d.bus.Publish(event.Type(), event)
	return nil
}

// SubscribeLogger writes every transition outcome to logger.
func SubscribeLogger(bus EventBus.Bus, logger log.FieldLogger) error {
	if err := bus.Subscribe(model.ProductCreated{}.Type(), func(e model.ProductCreated) {
		logger.WithFields(log.Fields{
			"productId": e.ProductID,
			"name":      e.Name,
			"producer":  e.Producer,
		}).Info("product created")
	}); err != nil {
		return err
	}

	if err := bus.Subscribe(model.ProductTransitioned{}.Type(), func(e model.ProductTransitioned) {
		logger.WithFields(log.Fields{
			"productId":  e.ProductID,
			"transition": e.Transition,
			"from":       e.FromState.String(),
			"to":         e.ToState.String(),
			"actor":      e.Actor,
			"location":   e.Location,
		}).Info("product transitioned")
	}); err != nil {
		return err
	}

	return bus.Subscribe(model.TransitionRejected{}.Type(), func(e model.TransitionRejected) {
		logger.WithFields(log.Fields{
			"productId":  e.ProductID,
			"transition": e.Transition,
			"actor":      e.Actor,
		}).WithError(e.Reason).Warn("transition rejected")
	})
}
