// Package authz maps staff roles to the capabilities the sale engine checks.
// Authentication happens upstream; this package only answers "may this actor
// do X".
package authz

// Capability names a gated operation.
type Capability string

const (
	CapSell            Capability = "sales:create"
	CapEditSales       Capability = "sales:edit"
	CapVoidSales       Capability = "sales:void"
	CapAddPartExchange Capability = "sales:add_part_exchange"
	CapApproveNegative Capability = "sales:approve_negative"
	CapViewCommissions Capability = "commissions:view"
)

// Roles, lowest to highest.
const (
	RoleStaff   = "staff"
	RoleManager = "manager"
	RoleOwner   = "owner"
)

var roleCapabilities = map[string][]Capability{
	RoleStaff: {CapSell},
	RoleManager: {
		CapSell, CapEditSales, CapAddPartExchange, CapApproveNegative, CapViewCommissions,
	},
	RoleOwner: {
		CapSell, CapEditSales, CapVoidSales, CapAddPartExchange, CapApproveNegative, CapViewCommissions,
	},
}

// Actor is the authenticated staff member performing an operation.
// Extra holds capabilities granted individually on top of the role.
type Actor struct {
	StaffID   string
	StaffName string
	Role      string
	Extra     []Capability
}

// Authorizer answers capability checks.
type Authorizer interface {
	Can(actor Actor, capability Capability) bool
}

// RoleAuthorizer grants capabilities from the role table plus Actor.Extra.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Can(actor Actor, capability Capability) bool {
	for _, c := range actor.Extra {
		if c == capability {
			return true
		}
	}
	for _, c := range roleCapabilities[actor.Role] {
		if c == capability {
			return true
		}
	}
	return false
}
