// Package auth provides HTTP middleware for API key authentication of the
// read-only API and the WebSocket stream.
package auth
