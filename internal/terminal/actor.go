package terminal

import "context"

type actorKey struct{}

// WithActor records who issued the request, for the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	a, _ := ctx.Value(actorKey{}).(string) //nolint:errcheck // type assertion, not an error
	return a
}
