package permissions

import (
	"example.com/venuehub/services/events/internal/models"
)

// Capability names an action an actor may be granted.
type Capability string

// Capabilities consumed by the lifecycle service
const (
	CapabilityApprove Capability = "approve"
	CapabilityReject  Capability = "reject"
	CapabilityRestore Capability = "restore"
)

// Oracle answers yes/no permission questions. The lifecycle service consumes
// the answers as opaque booleans; the role table behind them is not its
// concern.
type Oracle interface {
	HasCapability(actor models.Actor, capability Capability) bool
	Owns(actor models.Actor, record *models.EventRecord) bool
}

// RoleTable is a static user-to-capability grant table loaded from
// configuration.
type RoleTable struct {
	grants map[string]map[Capability]bool
}

// NewRoleTable builds an oracle from a user-id to capability-list mapping.
func NewRoleTable(roles map[string][]string) *RoleTable {
	grants := make(map[string]map[Capability]bool, len(roles))
	for userID, capabilities := range roles {
		set := make(map[Capability]bool, len(capabilities))
		for _, c := range capabilities {
			set[Capability(c)] = true
		}
		grants[userID] = set
	}
	return &RoleTable{grants: grants}
}

// HasCapability reports whether the actor holds the capability.
func (t *RoleTable) HasCapability(actor models.Actor, capability Capability) bool {
	return t.grants[actor.ID][capability]
}

// Owns reports whether the actor created the record.
func (t *RoleTable) Owns(actor models.Actor, record *models.EventRecord) bool {
	return record.CreatedBy == actor.ID
}
