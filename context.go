package jwthelper

import "context"

type subjectKey struct{}

// ContextWithSubject stores a verified subject inside the context for downstream consumers.
func ContextWithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext retrieves a subject previously stored with ContextWithSubject.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok := ctx.Value(subjectKey{}).(string)
	return subject, ok
}

// VerifyContext verifies token and returns a child context carrying its subject.
// On failure ctx is returned unchanged together with the error.
func (h *Helper) VerifyContext(ctx context.Context, token string) (context.Context, error) {
	subject, err := h.Verify(token)
	if err != nil {
		return ctx, err
	}
	return ContextWithSubject(ctx, subject), nil
}
