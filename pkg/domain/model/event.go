package model

type ProductCreated struct {
	ProductID int64
	Name      string
	Producer  string
}

func (e ProductCreated) Type() string { return "ProductCreated" }

type ProductTransitioned struct {
	ProductID  int64
	Transition TransitionKind
	FromState  ProductState
	ToState    ProductState
	Actor      string
	Location   string
}

func (e ProductTransitioned) Type() string { return "ProductTransitioned" }

type TransitionRejected struct {
	ProductID  int64
	Transition TransitionKind
	Actor      string
	Reason     error
}

func (e TransitionRejected) Type() string { return "TransitionRejected" }
