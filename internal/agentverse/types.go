// ABOUTME: Wire types for the remote agent-execution service
// ABOUTME: Search results, submission payload and result envelope

package agentverse

import (
	"fmt"
	"strings"
)

// Agent is one entry of a search response.
type Agent struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// DBConfig is the graph database connection forwarded with each query.
type DBConfig struct {
	URL       string `json:"url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	IndexName string `json:"index_name"`
}

// Payload is the query content of a submission.
type Payload struct {
	Input    string   `json:"input"`
	DBConfig DBConfig `json:"db_config"`
}

// SubmitRequest is the body of a query submission.
type SubmitRequest struct {
	Payload      Payload `json:"payload"`
	AgentAddress string  `json:"agentAddress"`
}

// Result is the body of a 200 response from the result endpoint.
type Result struct {
	Output string `json:"output"`
	Source string `json:"source,omitempty"`
}

// Ready reports whether the result carries an answer.
func (r *Result) Ready() bool {
	return r != nil && r.Output != ""
}

// ErrorResponse is the JSON error body returned by the service.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusError is returned when the service answers with an unexpected status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, body)
}
