// ABOUTME: Pluggable answer producers for the mock relay
// ABOUTME: EchoResponder renders a small markdown answer describing the query it received

package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/graphrag-assistant/internal/agentverse"
)

// Responder produces the answer an agent gives for a payload.
type Responder interface {
	Answer(ctx context.Context, agent agentverse.Agent, payload agentverse.Payload) (agentverse.Result, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, agent agentverse.Agent, payload agentverse.Payload) (agentverse.Result, error)

// Answer calls f.
func (f ResponderFunc) Answer(ctx context.Context, agent agentverse.Agent, payload agentverse.Payload) (agentverse.Result, error) {
	return f(ctx, agent, payload)
}

// EchoResponder answers every query with a markdown summary of what was asked.
type EchoResponder struct{}

// Answer implements Responder.
func (EchoResponder) Answer(_ context.Context, agent agentverse.Agent, payload agentverse.Payload) (agentverse.Result, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", agent.Name)
	fmt.Fprintf(&b, "You asked: *%s*\n\n", strings.TrimSpace(payload.Input))
	b.WriteString("Searched the knowledge graph with:\n\n")
	fmt.Fprintf(&b, "- **database**: `%s`\n", orUnset(payload.DBConfig.URL))
	fmt.Fprintf(&b, "- **user**: `%s`\n", orUnset(payload.DBConfig.Username))
	fmt.Fprintf(&b, "- **index**: `%s`\n", orUnset(payload.DBConfig.IndexName))

	return agentverse.Result{Output: b.String(), Source: agent.Name}, nil
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
