package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"supplychain/pkg/common/keylock"
	"supplychain/pkg/domain/model"
)

type Event interface{ Type() string }
type EventDispatcher interface{ Dispatch(event Event) error }

// SupplyChainService is the only writer of product state. Every named transition delegates to
// Apply.
type SupplyChainService interface {
	CreateProduct(ctx context.Context, actor, name, location string) (*model.Product, error)

	Ship(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	ReceiveInTransit(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	DeliverToWarehouse(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	ReceiveInWarehouse(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	ShipToDistributor(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	ReceiveByDistributor(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	DeliverToRetailer(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	ReceiveByRetailer(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	SellProduct(ctx context.Context, productID int64, actor, location string) (*model.Product, error)
	PurchaseProduct(ctx context.Context, productID int64, actor, location string) (*model.Product, error)

	Apply(ctx context.Context, productID int64, kind model.TransitionKind, actor, location string) (*model.Product, error)
}

type Option func(s *supplyChainService)

func WithClock(now func() time.Time) Option {
	return func(s *supplyChainService) { s.now = now }
}

func NewSupplyChainService(uow model.UnitOfWork, authority model.RoleAuthority, dispatcher EventDispatcher, opts ...Option) SupplyChainService {
	s := &supplyChainService{
		uow:        uow,
		authority:  authority,
		dispatcher: dispatcher,
		locks:      keylock.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type supplyChainService struct {
	uow        model.UnitOfWork
	authority  model.RoleAuthority
	dispatcher EventDispatcher
	locks      *keylock.Locker
	now        func() time.Time
}

func (s *supplyChainService) CreateProduct(ctx context.Context, actor, name, location string) (*model.Product, error) {
	if err := validateCreate(actor, name); err != nil {
		s.reject(0, model.Create, actor, err)
		return nil, err
	}

	rule, _ := model.RuleFor(model.Create)
	if err := s.authorize(ctx, actor, rule); err != nil {
		s.reject(0, model.Create, actor, err)
		return nil, err
	}

	var product model.Product
	err := s.uow.Execute(ctx, func(provider model.RepositoryProvider) error {
		id, err := provider.ProductRepository().NextID(ctx)
		if err != nil {
			return err
		}

		var record model.TransactionRecord
		product, record = model.NewProduct(id, name, actor, location, s.now())

		if err := provider.ProductRepository().Create(ctx, &product); err != nil {
			return err
		}
		return provider.HistoryRepository().Append(ctx, &record)
	})
	if err != nil {
		s.reject(0, model.Create, actor, err)
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.ProductCreated{ProductID: product.ID, Name: product.Name, Producer: actor})
	return &product, nil
}

func (s *supplyChainService) Ship(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.Ship, actor, location)
}

func (s *supplyChainService) ReceiveInTransit(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.ReceiveInTransit, actor, location)
}

func (s *supplyChainService) DeliverToWarehouse(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.DeliverToWarehouse, actor, location)
}

func (s *supplyChainService) ReceiveInWarehouse(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.ReceiveInWarehouse, actor, location)
}

func (s *supplyChainService) ShipToDistributor(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.ShipToDistributor, actor, location)
}

func (s *supplyChainService) ReceiveByDistributor(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.ReceiveByDistributor, actor, location)
}

func (s *supplyChainService) DeliverToRetailer(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.DeliverToRetailer, actor, location)
}

func (s *supplyChainService) ReceiveByRetailer(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.ReceiveByRetailer, actor, location)
}

func (s *supplyChainService) SellProduct(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.SellProduct, actor, location)
}

func (s *supplyChainService) PurchaseProduct(ctx context.Context, productID int64, actor, location string) (*model.Product, error) {
	return s.Apply(ctx, productID, model.PurchaseProduct, actor, location)
}

func (s *supplyChainService) Apply(ctx context.Context, productID int64, kind model.TransitionKind, actor, location string) (*model.Product, error) {
	rule, err := validateTransition(kind, actor, location)
	if err != nil {
		s.reject(productID, kind, actor, err)
		return nil, err
	}

	unlock := s.locks.Lock(productID)
	defer unlock()

	var (
		updated model.Product
		record  model.TransactionRecord
	)
	err = s.uow.Execute(ctx, func(provider model.RepositoryProvider) error {
		product, err := provider.ProductRepository().Find(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, actor, rule); err != nil {
			return err
		}

		updated, record, err = rule.Apply(*product, actor, location, s.now())
		if err != nil {
			return err
		}

		if err := provider.ProductRepository().Update(ctx, &updated); err != nil {
			return err
		}
		return provider.HistoryRepository().Append(ctx, &record)
	})
	if err != nil {
		s.reject(productID, kind, actor, err)
		return nil, err
	}

	_ = s.dispatcher.Dispatch(model.ProductTransitioned{
		ProductID:  productID,
		Transition: kind,
		FromState:  record.FromState,
		ToState:    record.ToState,
		Actor:      actor,
		Location:   location,
	})
	return &updated, nil
}

func validateCreate(actor, name string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is empty", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: product name is empty", model.ErrInvalidArgument)
	}
	return nil
}

func validateTransition(kind model.TransitionKind, actor, location string) (model.Rule, error) {
	rule, ok := model.RuleFor(kind)
	if !ok || kind == model.Create {
		return model.Rule{}, fmt.Errorf("%w: unknown transition %q", model.ErrInvalidArgument, kind)
	}
	if strings.TrimSpace(actor) == "" {
		return model.Rule{}, fmt.Errorf("%w: actor is empty", model.ErrInvalidArgument)
	}
	if strings.TrimSpace(location) == "" {
		return model.Rule{}, fmt.Errorf("%w: location is empty", model.ErrInvalidArgument)
	}
	return rule, nil
}

func (s *supplyChainService) authorize(ctx context.Context, actor string, rule model.Rule) error {
	if !rule.RequiresCapability() {
		return nil
	}
	ok, err := s.authority.HasCapability(ctx, actor, rule.Capability)
	if err != nil {
		return err
	}
	if !ok {
		return &model.UnauthorizedError{Actor: actor, Capability: rule.Capability}
	}
	return nil
}

func (s *supplyChainService) reject(productID int64, kind model.TransitionKind, actor string, reason error) {
	_ = s.dispatcher.Dispatch(model.TransitionRejected{
		ProductID:  productID,
		Transition: kind,
		Actor:      actor,
		Reason:     reason,
	})
}
