package authz

import (
	"context"

	"github.com/platinummonkey/carehub/pkg/contextkeys"
)

// Principal is the authenticated caller placed in the request context by the
// authentication layer.
type Principal struct {
	SubjectID  int64
	SuperAdmin bool
}

// Identity resolves the current caller and the platform super-admin
// capability.
type Identity interface {
	CurrentSubject(ctx context.Context) (int64, bool)
	IsSuperAdmin(ctx context.Context, subjectID int64) bool
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return contextkeys.WithPrincipal(ctx, p)
}

// PrincipalFrom returns the principal stored in ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(Principal)
	return p, ok
}

// ContextIdentity reads the caller from the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentSubject(ctx context.Context) (int64, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.SubjectID == 0 {
		return 0, false
	}
	return p.SubjectID, true
}

// IsSuperAdmin is true only when the context principal is subjectID and
// carries the super-admin flag.
func (ContextIdentity) IsSuperAdmin(ctx context.Context, subjectID int64) bool {
	p, ok := PrincipalFrom(ctx)
	return ok && p.SubjectID == subjectID && p.SuperAdmin
}

// StaticIdentity treats a fixed set of subjects as super-admins. It is used
// by the operator CLI, which has no request context.
type StaticIdentity struct {
	Subject     int64
	SuperAdmins map[int64]bool
}

func (s StaticIdentity) CurrentSubject(context.Context) (int64, bool) {
	return s.Subject, s.Subject != 0
}

func (s StaticIdentity) IsSuperAdmin(_ context.Context, subjectID int64) bool {
	return s.SuperAdmins[subjectID]
}
