package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Status is the serving state of a tenant. Only active tenants resolve for
// request traffic.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is one of the enumerated tenant statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Tenant is one isolated merchant account. ID, Domain and StorageRef are
// immutable once created; Name and Status are mutable.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Domain     string    `json:"domain"`
	StorageRef string    `json:"storageRef"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
