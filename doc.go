// Package gatekeeper mediates identity between an HTTP-facing application and a remote
// identity service. It resolves the opaque session token carried by incoming requests
// into an authoritative session record, enforces the authentication level a route
// requires, guards state-changing routes against cross-site request forgery, and runs
// the one-shot OAuth code exchange that links a session to a user account at login.
//
// The package is built as a set of Typhon filters and a typed client; it grants no
// permissions of its own beyond attaching session and user identity to a request.
package gatekeeper
