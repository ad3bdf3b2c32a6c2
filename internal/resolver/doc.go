// Package resolver maps an assistant mode name to a concrete remote agent.
//
// Resolve searches the discovery endpoint with the mode name, prefers the
// result whose name equals the mode exactly, and otherwise falls back to the
// first result (logged at warn level). The chosen identity is written to the
// settings store as the selected agent and cached under agent:<mode>.
//
// Failures never touch the store. ErrTransport is retryable by reselecting the
// mode. A second Resolve while one is in flight returns ErrBusy.
package resolver
