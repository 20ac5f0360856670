package testutil

import (
	"net/http"

	id "instahelp/pkg/domain"
	"instahelp/pkg/requestcontext"
)

// WithActor attaches a caller identity to the request.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithClientMetadata sets the client IP and user agent seen by handlers.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
