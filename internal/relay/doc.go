// Package relay is an in-process stand-in for the remote agent-execution
// service. It serves agent search, query submission and result polling with
// the same JSON shapes the assistant client expects, and is used by tests and
// by cmd/graphrag-relay for local development.
package relay
