package model

import "context"

type Capability string

const (
	Producer    Capability = "producer"
	Carrier     Capability = "carrier"
	Warehouse   Capability = "warehouse"
	Distributor Capability = "distributor"
	Retailer    Capability = "retailer"
)

var capabilities = []Capability{Producer, Carrier, Warehouse, Distributor, Retailer}

func Capabilities() []Capability {
	return append([]Capability(nil), capabilities...)
}

func ParseCapability(s string) (Capability, bool) {
	for _, c := range capabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// RoleAuthority answers capability questions. CapabilitiesOf returns a sorted set.
type RoleAuthority interface {
	HasCapability(ctx context.Context, identity string, capability Capability) (bool, error)
	CapabilitiesOf(ctx context.Context, identity string) ([]Capability, error)
}

// RoleAdministrator mutates the grant set. It is only used by administrative tooling.
type RoleAdministrator interface {
	Grant(ctx context.Context, identity string, capability Capability) error
	Revoke(ctx context.Context, identity string, capability Capability) error
}
