// Package core holds the gateway's domain model and the components that
// drive it: the OAuth install orchestrator, the credential vault, the
// capability registry, and the single-use state and PKCE stores.
//
// Everything here is transport-agnostic. HTTP wiring lives in httpapi,
// persistence in store/sql, and webhook processing in webhooks.
package core
