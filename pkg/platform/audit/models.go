package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers changes to medical records and who approved them.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers access to protected data and authentication failures.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory  `json:"category"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      string         `json:"actor_id,omitempty"`
	ActorRole    string         `json:"actor_role,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Change governance
	EventPendingChangeCreated   AuditEvent = "pending_change_created"
	EventPendingChangeApproved  AuditEvent = "pending_change_approved"
	EventPendingChangeRejected  AuditEvent = "pending_change_rejected"
	EventPendingChangeFinalized AuditEvent = "pending_change_finalized"

	// Patient records
	EventProfileInitialized     AuditEvent = "patient_profile_initialized"
	EventPrivateProfileAccessed AuditEvent = "private_profile_accessed"

	// Capability tokens
	EventTokenCreated          AuditEvent = "token_created"
	EventTokenRotated          AuditEvent = "token_rotated"
	EventTokenRevoked          AuditEvent = "token_revoked"
	EventEmergencyViewAccessed AuditEvent = "emergency_view_accessed"

	// Devices
	EventDeviceRegistered        AuditEvent = "device_registered"
	EventVitalsIngested          AuditEvent = "vitals_ingested"
	EventDeviceSignatureRejected AuditEvent = "device_signature_rejected"
)

// Resource types recorded on events.
const (
	ResourcePendingChange = "pending_change"
	ResourcePatient       = "patient"
	ResourceToken         = "capability_token"
	ResourceDevice        = "device"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPendingChangeCreated:   CategoryCompliance,
	EventPendingChangeApproved:  CategoryCompliance,
	EventPendingChangeRejected:  CategoryCompliance,
	EventPendingChangeFinalized: CategoryCompliance,
	EventProfileInitialized:     CategoryCompliance,

	EventPrivateProfileAccessed:  CategorySecurity,
	EventEmergencyViewAccessed:   CategorySecurity,
	EventTokenRotated:            CategorySecurity,
	EventTokenRevoked:            CategorySecurity,
	EventDeviceSignatureRejected: CategorySecurity,

	EventTokenCreated:     CategoryOperations,
	EventDeviceRegistered: CategoryOperations,
	EventVitalsIngested:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink is a write-only destination, e.g. a message stream.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
