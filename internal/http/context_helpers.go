package httpx

import (
	"context"

	domainauth "github.com/target/storefront-api/internal/domain/auth"
	"github.com/target/storefront-api/internal/service"
)

// Unexported context key types avoid collisions across packages.
type (
	visitorKey  struct{}
	snapshotKey struct{}
)

// SetVisitorInContext returns a child context that carries the visitor.
// If v is nil, the original ctx is returned unchanged.
func SetVisitorInContext(ctx context.Context, v *service.Visitor) context.Context {
	if v == nil {
		return ctx
	}
	return context.WithValue(ctx, visitorKey{}, v)
}

// VisitorFromContext returns the visitor resolved by the Visitors middleware.
func VisitorFromContext(ctx context.Context) (*service.Visitor, bool) {
	v, ok := ctx.Value(visitorKey{}).(*service.Visitor)
	return v, ok && v != nil
}

// setSnapshotInContext records the snapshot the guard decided on, so the view
// renders exactly the session that was authorized.
func setSnapshotInContext(ctx context.Context, snap domainauth.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// SnapshotFromContext returns the snapshot the guard admitted the request with.
func SnapshotFromContext(ctx context.Context) (domainauth.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey{}).(domainauth.Snapshot)
	return snap, ok
}
