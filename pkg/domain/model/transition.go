package model

import "time"

type TransitionKind string

const (
	Create               TransitionKind = "create"
	Ship                 TransitionKind = "ship"
	ReceiveInTransit     TransitionKind = "receiveInTransit"
	DeliverToWarehouse   TransitionKind = "deliverToWarehouse"
	ReceiveInWarehouse   TransitionKind = "receiveInWarehouse"
	ShipToDistributor    TransitionKind = "shipToDistributor"
	ReceiveByDistributor TransitionKind = "receiveByDistributor"
	DeliverToRetailer    TransitionKind = "deliverToRetailer"
	ReceiveByRetailer    TransitionKind = "receiveByRetailer"
	SellProduct          TransitionKind = "sellProduct"
	PurchaseProduct      TransitionKind = "purchaseProduct"
)

// Rule binds a transition to the capability it requires and the state edge it follows.
// An empty Capability means any actor may invoke the transition.
type Rule struct {
	Kind             TransitionKind
	Capability       Capability
	From             ProductState
	To               ProductState
	TransfersCustody bool
}

var transitions = []Rule{
	{Kind: Create, Capability: Producer, From: Produced, To: Produced, TransfersCustody: true},
	{Kind: Ship, Capability: Producer, From: Produced, To: InTransit, TransfersCustody: true},
	{Kind: ReceiveInTransit, Capability: Carrier, From: InTransit, To: InTransit},
	{Kind: DeliverToWarehouse, Capability: Carrier, From: InTransit, To: InWarehouse, TransfersCustody: true},
	{Kind: ReceiveInWarehouse, Capability: Warehouse, From: InWarehouse, To: InWarehouse},
	{Kind: ShipToDistributor, Capability: Warehouse, From: InWarehouse, To: Distributed, TransfersCustody: true},
	{Kind: ReceiveByDistributor, Capability: Distributor, From: Distributed, To: Distributed},
	{Kind: DeliverToRetailer, Capability: Distributor, From: Distributed, To: InStore, TransfersCustody: true},
	{Kind: ReceiveByRetailer, Capability: Retailer, From: Distributed, To: Distributed},
	{Kind: SellProduct, Capability: Retailer, From: InStore, To: Sold, TransfersCustody: true},
	{Kind: PurchaseProduct, From: InStore, To: Sold, TransfersCustody: true},
}

func Transitions() []Rule {
	return append([]Rule(nil), transitions...)
}

func RuleFor(kind TransitionKind) (Rule, bool) {
	for _, r := range transitions {
		if r.Kind == kind {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) RequiresCapability() bool { return r.Capability != "" }

// Apply checks the state precondition and returns the advanced product together with the ledger
// record describing the change. The input product is never modified.
func (r Rule) Apply(product Product, actor, location string, now time.Time) (Product, TransactionRecord, error) {
	if product.State != r.From {
		return product, TransactionRecord{}, &InvalidStateTransitionError{
			ProductID:  product.ID,
			Transition: r.Kind,
			Expected:   r.From,
			Actual:     product.State,
		}
	}

	next := product
	next.State = r.To
	next.LastUpdated = now
	if r.TransfersCustody {
		next.CurrentOwner = actor
	}

	return next, TransactionRecord{
		ProductID:  product.ID,
		Transition: r.Kind,
		FromState:  r.From,
		ToState:    r.To,
		Actor:      actor,
		Timestamp:  now,
		Location:   location,
	}, nil
}

// NewProduct builds a freshly produced product and its creation record.
func NewProduct(id int64, name, producer, location string, now time.Time) (Product, TransactionRecord) {
	product := Product{
		ID:           id,
		Name:         name,
		Producer:     producer,
		CurrentOwner: producer,
		State:        Produced,
		CreatedAt:    now,
		LastUpdated:  now,
	}
	return product, TransactionRecord{
		ProductID:  id,
		Transition: Create,
		FromState:  Produced,
		ToState:    Produced,
		Actor:      producer,
		Timestamp:  now,
		Location:   location,
	}
}
