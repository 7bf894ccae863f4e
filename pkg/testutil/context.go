package testutil

import (
	"context"
	"net/http"

	"loanflow/internal/platform/middleware"
	"loanflow/pkg/requestcontext"
)

// WithActor threads an audit actor and reason into the request context, the
// way the HTTP layer does before calling a service.
func WithActor(req *http.Request, actor, reason string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor, reason)
	return req.WithContext(ctx)
}

// WithAdminSubject marks the request as authenticated admin traffic. This
// simulates what the admin middleware does after validating a token.
func WithAdminSubject(req *http.Request, subject string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyAdminSubject, subject)
	return req.WithContext(ctx)
}
