// ABOUTME: Mock agent-execution service: agent search, query submission and result polling
// ABOUTME: Holds a single pending answer that becomes readable after a configurable delay

package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/auth"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/dedupe"
)

// Error bodies returned to clients.
const (
	errQueryRequired = "Query parameter is required"
	errMissingFields = "Missing payload or agent address"
	errUnknownAgent  = "Unknown agent address"
	errNoResponse    = "No response available"
	errInternal      = "internal server error"
)

// maxBodySize bounds submission bodies.
const maxBodySize = 1 << 20

// Options configures a Server.
type Options struct {
	Agents    []agentverse.Agent
	Responder Responder

	// AnswerDelay is how long after a submission its answer becomes readable.
	AnswerDelay time.Duration

	// Verifier enables bearer-token checks on every endpoint except /health.
	Verifier auth.TokenVerifier

	SearchPath string
	SubmitPath string
	ResultPath string

	Now    func() time.Time
	Logger *slog.Logger
}

// Server serves the three endpoints the assistant client talks to.
type Server struct {
	agents    []agentverse.Agent
	byAddress map[string]agentverse.Agent
	responder Responder
	delay     time.Duration
	verifier  auth.TokenVerifier
	paths     [3]string // search, submit, result
	now       func() time.Time
	seen      *dedupe.Cache
	logger    *slog.Logger

	mu      sync.Mutex
	pending *pendingAnswer
}

type pendingAnswer struct {
	result  agentverse.Result
	readyAt time.Time
}

// New creates a Server. A nil Responder uses EchoResponder.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	responder := opts.Responder
	if responder == nil {
		responder = EchoResponder{}
	}

	byAddress := make(map[string]agentverse.Agent, len(opts.Agents))
	for _, a := range opts.Agents {
		byAddress[a.Address] = a
	}

	return &Server{
		agents:    append([]agentverse.Agent(nil), opts.Agents...),
		byAddress: byAddress,
		responder: responder,
		delay:     opts.AnswerDelay,
		verifier:  opts.Verifier,
		paths: [3]string{
			orDefault(opts.SearchPath, config.DefaultSearchPath),
			orDefault(opts.SubmitPath, config.DefaultSubmitPath),
			orDefault(opts.ResultPath, config.DefaultResultPath),
		},
		now:    now,
		seen:   dedupe.NewWithClock(dedupe.DefaultTTL, 10000, now),
		logger: logger.With("component", "relay"),
	}
}

// AgentsFromConfig converts configured relay agents to wire agents.
func AgentsFromConfig(agents []config.RelayAgent) []agentverse.Agent {
	out := make([]agentverse.Agent, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentverse.Agent{Address: a.Address, Name: a.Name})
	}
	return out
}

// Handler returns the HTTP handler for the relay.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc(s.paths[0], s.handleSearch)
	api.HandleFunc(s.paths[1], s.handleSubmit)
	api.HandleFunc(s.paths[2], s.handleResult)

	var protected http.Handler = api
	if s.verifier != nil {
		protected = auth.HTTPAuthMiddleware(s.verifier, s.logger)(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("/health", s.handleHealth)
	root.Handle("/", protected)
	return root
}

// Close stops the dedupe sweeper.
func (s *Server) Close() {
	s.seen.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSearch handles GET <search_path>?query=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		s.sendJSONError(w, http.StatusBadRequest, errQueryRequired)
		return
	}

	matches := rank(s.agents, query)
	s.logger.Debug("agent search", "query", query, "matches", len(matches))
	s.sendJSON(w, http.StatusOK, matches)
}

// handleSubmit handles POST <submit_path>.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req agentverse.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Payload.Input) == "" || req.AgentAddress == "" {
		s.sendJSONError(w, http.StatusBadRequest, errMissingFields)
		return
	}

	agent, ok := s.byAddress[req.AgentAddress]
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, errUnknownAgent)
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID != "" && s.seen.CheckAndMark(requestID) {
		s.logger.Info("duplicate submission acknowledged", "request_id", requestID)
		s.sendJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}

	result, err := s.responder.Answer(r.Context(), agent, req.Payload)
	if err != nil {
		if requestID != "" {
			s.seen.Forget(requestID)
		}
		s.logger.Error("responder failed", "agent", agent.Name, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, errInternal)
		return
	}
	if result.Source == "" {
		result.Source = agent.Name
	}

	s.mu.Lock()
	if s.pending != nil {
		s.logger.Debug("replacing undelivered answer", "source", s.pending.result.Source)
	}
	s.pending = &pendingAnswer{result: result, readyAt: s.now().Add(s.delay)}
	s.mu.Unlock()

	s.logger.Info("query accepted", "agent", agent.Name, "request_id", requestID)
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// handleResult handles GET <result_path>. A ready answer is delivered once.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	p := s.pending
	if p == nil || s.now().Before(p.readyAt) {
		s.mu.Unlock()
		s.sendJSONError(w, http.StatusNotFound, errNoResponse)
		return
	}
	s.pending = nil
	s.mu.Unlock()

	s.logger.Info("answer delivered", "source", p.result.Source)
	s.sendJSON(w, http.StatusOK, p.result)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, agentverse.ErrorResponse{Error: message})
}

// rank returns the agents sharing at least one word with query, best first.
// Ties keep registration order.
func rank(agents []agentverse.Agent, query string) []agentverse.Agent {
	want := make(map[string]bool)
	for _, tok := range tokenize(query) {
		want[tok] = true
	}

	type scored struct {
		agent agentverse.Agent
		score int
	}
	var hits []scored
	for _, a := range agents {
		score := 0
		for _, tok := range tokenize(a.Name) {
			if want[tok] {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{a, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]agentverse.Agent, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.agent)
	}
	return out
}

// tokenize lowercases s and splits it into distinct words.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
