// Package auth provides the per-request bearer-token authentication gate.
//
// The gate runs once per inbound request: it extracts a bearer token from
// the Authorization header, verifies it through the jwt package, maps the
// verified claims onto a Principal, and installs the Principal into the
// request context for the remainder of request handling. Requests without
// bearer credentials pass through unauthenticated; requests that already
// carry a Principal are passed through untouched, so the middleware is
// safe to place multiple times in a chain.
//
// Authorization decisions are out of scope: downstream handlers read the
// Principal's authorities and decide for themselves.
package auth
