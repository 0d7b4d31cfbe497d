// Package http is the transport layer: it parses requests, resolves the
// acting principal, invokes the lending service, and maps service errors to
// HTTP statuses. No business rules live here.
package http
