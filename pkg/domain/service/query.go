package service

import (
	"context"

	"supplychain/pkg/domain/model"
)

// ProductQueryService serves reads. It never takes the per-product lock, so results may trail a
// transition that is being applied concurrently.
type ProductQueryService interface {
	GetProduct(ctx context.Context, productID int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	History(ctx context.Context, productID int64) ([]model.TransactionRecord, error)
	RecordsByActor(ctx context.Context, actor string) ([]model.TransactionRecord, error)
	CapabilitiesOf(ctx context.Context, actor string) ([]model.Capability, error)
}

func NewProductQueryService(products model.ProductRepository, history model.HistoryRepository, authority model.RoleAuthority) ProductQueryService {
	return &productQueryService{products: products, history: history, authority: authority}
}

type productQueryService struct {
	products  model.ProductRepository
	history   model.HistoryRepository
	authority model.RoleAuthority
}

func (s *productQueryService) GetProduct(ctx context.Context, productID int64) (*model.Product, error) {
	return s.products.Find(ctx, productID)
}

func (s *productQueryService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.products.List(ctx)
}

func (s *productQueryService) History(ctx context.Context, productID int64) ([]model.TransactionRecord, error) {
	if _, err := s.products.Find(ctx, productID); err != nil {
		return nil, err
	}
	return s.history.HistoryFor(ctx, productID)
}

func (s *productQueryService) RecordsByActor(ctx context.Context, actor string) ([]model.TransactionRecord, error) {
	return s.history.RecordsByActor(ctx, actor)
}

func (s *productQueryService) CapabilitiesOf(ctx context.Context, actor string) ([]model.Capability, error) {
	return s.authority.CapabilitiesOf(ctx, actor)
}
