// Package server implements the short-lived loopback listener that catches the
// OAuth authorization redirect.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering,
// and answers unregistered paths with a plain-text 404.
//
// # Callback Handling
//
// [CallbackHandler] serves exactly one route, /callback, and exactly one
// callback per listener lifetime. It parses code/error/state from the redirect
// query, renders a self-contained HTML result page, and forwards the parsed
// [Result] to a sink function out-of-band from the HTTP response. The success
// hand-off is delayed a few seconds so the page can paint; the delay is a UX
// tunable, not a protocol requirement.
//
// State validation happens in the coordinator, not here: the hand-off seam is
// treated as untrusted input regardless of how a host delivers it.
//
// # Listener Lifecycle
//
// [Listener] binds 127.0.0.1 on the fixed port registered with the provider.
// Binding a port another process holds fails distinctly with
// [shared.ErrPortInUse]. Stop is idempotent; every completion path of an
// authorization attempt can call it safely.
package server
