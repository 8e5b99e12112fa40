package httpx

import "context"

type ctxKey string

const (
	CtxKeySubjectID ctxKey = "subject_id"
	CtxKeyRole      ctxKey = "role"
)

// Identity is what the authn middleware places on the request context.
type Identity struct {
	SubjectID string
	Role      string
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, CtxKeySubjectID, id.SubjectID)
	ctx = context.WithValue(ctx, CtxKeyRole, id.Role)
	return ctx
}

// IdentityFromCtx returns the identity set by AuthnMiddleware.
func IdentityFromCtx(ctx context.Context) (Identity, bool) {
	sub, ok := ctx.Value(CtxKeySubjectID).(string)
	if !ok || sub == "" {
		return Identity{}, false
	}
	role, _ := ctx.Value(CtxKeyRole).(string)
	return Identity{SubjectID: sub, Role: role}, true
}

func roleFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRole).(string); ok {
		return v
	}
	return ""
}
