package audit

import (
	"context"

	"instahelp/pkg/requestcontext"
)

// NewEvent builds an event for action on a resource, filling caller identity
// and request metadata from ctx.
func NewEvent(ctx context.Context, action AuditEvent, resourceType, resourceID string) Event {
	e := Event{
		Category:     action.Category(),
		Timestamp:    requestcontext.Now(ctx),
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
		RequestID:    requestcontext.RequestID(ctx),
	}
	if actor, ok := requestcontext.Actor(ctx); ok {
		e.ActorID = actor.UserID.String()
		e.ActorRole = actor.Role.String()
	}
	return e
}
