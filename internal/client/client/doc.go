// Package client talks to the objidx HTTP API.
//
// HTTPClient implements Client over net/http. It sends the bearer token when
// one is configured and maps error responses to sentinels that callers match
// with errors.Is: ErrBadRequest, ErrUnauthorized, ErrNotFound, ErrConflict.
// The server's error body is kept as a *models.APIError reachable through
// errors.As, so conflicts still report the object id. Transport failures
// wrap ErrUnavailable.
package client
