package testutil

import (
	"net/http"
	"strings"

	"actarchive/internal/access"
	id "actarchive/pkg/domain"
	"actarchive/pkg/requestcontext"
)

// Identity header names, duplicated from the identity middleware to keep
// testutil free of a middleware import cycle.
const (
	headerUserID  = "X-User-ID"
	headerRole    = "X-User-Role"
	headerBureaux = "X-User-Bureaux"
)

// WithIdentity stores a resolved identity in the request context. This
// simulates what the identity middleware does for handler-level tests that
// call handler methods directly. Invalid user IDs leave the request unchanged.
func WithIdentity(req *http.Request, userID string, role access.Role, bureaux ...string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	identity, err := access.NewIdentity(parsed, role, bureaux)
	if err != nil {
		return req
	}
	ctx := access.WithIdentity(req.Context(), identity)
	ctx = requestcontext.WithUserID(ctx, identity.UserID)
	return req.WithContext(ctx)
}

// WithIdentityHeaders sets the gateway identity headers on a request that
// goes through the full router.
func WithIdentityHeaders(req *http.Request, userID string, role access.Role, bureaux ...string) *http.Request {
	req.Header.Set(headerUserID, userID)
	req.Header.Set(headerRole, string(role))
	if len(bureaux) > 0 {
		req.Header.Set(headerBureaux, strings.Join(bureaux, ","))
	}
	return req
}
