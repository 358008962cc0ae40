package authorization

import "context"

// Service decides whether an actor holding a role may perform action on object.
// The actor and role are asserted by the upstream gateway.
type Service interface {
	Authorize(ctx context.Context, actor, role, object, action string) error
}
