// ABOUTME: Dispatch-and-poll controller: submits a query, then polls for its answer
// ABOUTME: One owning goroutine holds all session state; network results arrive as events

package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/graphrag-assistant/internal/agentverse"
	"github.com/2389/graphrag-assistant/internal/config"
	"github.com/2389/graphrag-assistant/internal/conversation"
	"github.com/2389/graphrag-assistant/internal/settings"
)

// User-visible outcomes.
const (
	DefaultAgentLabel = "GraphRag Assistant"
	MsgGenericError   = "Something went wrong. Please try again."
	MsgTimeout        = "Response timed out. Please try again."
)

// Service is the remote endpoint pair the controller drives.
type Service interface {
	Submit(ctx context.Context, req agentverse.SubmitRequest) error
	FetchResult(ctx context.Context) (*agentverse.Result, error)
}

// SettingsReader supplies the connection config and agent for a submission.
type SettingsReader interface {
	Connection() settings.ConnectionConfig
	Agent() *settings.AgentIdentity
}

// Options configures a Controller.
type Options struct {
	Service  Service
	Settings SettingsReader
	State    *conversation.State
	Recorder *conversation.Recorder

	// AttemptLimit and Interval bound each PollSession. Zero uses the defaults.
	AttemptLimit int
	Interval     time.Duration

	// Supersede lets Submit cancel an in-flight submission instead of
	// rejecting the new one.
	Supersede bool

	Clock  Clock
	Logger *slog.Logger
}

// Controller owns at most one submission and its PollSession at a time.
type Controller struct {
	service      Service
	settings     SettingsReader
	state        *conversation.State
	rec          *conversation.Recorder
	attemptLimit int
	interval     time.Duration
	supersede    bool
	clock        Clock
	logger       *slog.Logger

	cmds    chan command
	events  chan event
	started chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	stopLoop  context.CancelFunc

	// Owned by the loop goroutine.
	loopCtx context.Context
	current *run
	last    PollSession
	hasLast bool
	nextID  uint64
}

// run is one submission: the unacknowledged POST, then its PollSession.
type run struct {
	id       uint64
	ctx      context.Context
	cancel   context.CancelFunc
	session  *PollSession // nil until the submit is acknowledged
	ticker   Ticker
	inFlight int
}

type command struct {
	fn   func()
	done chan struct{}
}

type event interface{ runID() uint64 }

type submitAcked struct {
	id  uint64
	err error
}

type pollSettled struct {
	id      uint64
	attempt int
	result  *agentverse.Result
	err     error
}

func (e submitAcked) runID() uint64 { return e.id }
func (e pollSettled) runID() uint64 { return e.id }

// New creates a Controller. Call Start before submitting.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	limit := opts.AttemptLimit
	if limit <= 0 {
		limit = config.DefaultAttemptLimit
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}

	return &Controller{
		service:      opts.Service,
		settings:     opts.Settings,
		state:        opts.State,
		rec:          opts.Recorder,
		attemptLimit: limit,
		interval:     interval,
		supersede:    opts.Supersede,
		clock:        clock,
		logger:       logger.With("component", "dispatch"),
		cmds:         make(chan command),
		events:       make(chan event),
		started:      make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Start launches the owning loop. Cancelling ctx tears it down like Close.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.loopCtx, c.stopLoop = context.WithCancel(ctx)
		close(c.started)
		go c.loop(c.loopCtx)
	})
}

// Close stops the ticker, cancels in-flight requests and discards the session.
func (c *Controller) Close() {
	select {
	case <-c.started:
	default:
		return
	}
	c.stopLoop()
	<-c.stopped
}

// Submit sends text to the selected agent. It returns false without any
// visible effect when text is blank, a submission is already processing
// (unless Supersede is set), or no agent is selected.
func (c *Controller) Submit(text string) bool {
	var accepted bool
	c.do(func() { accepted = c.handleSubmit(text) })
	return accepted
}

// Cancel abandons the active submission. Late responses are discarded.
// It reports whether anything was cancelled.
func (c *Controller) Cancel() bool {
	var cancelled bool
	c.do(func() {
		if c.current == nil {
			return
		}
		c.end(StatusCancelled, "")
		cancelled = true
	})
	return cancelled
}

// RetryPrior restores the most recent user message as the draft without
// submitting it.
func (c *Controller) RetryPrior() (string, bool) {
	var (
		text string
		ok   bool
	)
	c.do(func() {
		m, found := c.state.Snapshot().LastUserMessage()
		if !found {
			return
		}
		text, ok = m.Content, true
		c.rec.SetDraft(text)
	})
	return text, ok
}

// LastSession returns a copy of the active or most recently ended session.
func (c *Controller) LastSession() (PollSession, bool) {
	var (
		s  PollSession
		ok bool
	)
	c.do(func() {
		if c.current != nil && c.current.session != nil {
			s, ok = *c.current.session, true
			return
		}
		s, ok = c.last, c.hasLast
	})
	return s, ok
}

// do runs fn on the loop goroutine and waits for it. It reports false when
// the loop is not running.
func (c *Controller) do(fn func()) bool {
	select {
	case <-c.started:
	default:
		return false
	}

	done := make(chan struct{})
	select {
	case c.cmds <- command{fn: fn, done: done}:
	case <-c.stopped:
		return false
	}
	<-done
	return true
}

// post hands an async result to the loop, giving up once it has stopped.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return
		case cmd := <-c.cmds:
			cmd.fn()
			close(cmd.done)
		case ev := <-c.events:
			c.apply(ev)
		case <-c.tickC():
			c.onTick()
		}
	}
}

// tickC is nil, and so never ready, when no ticker is running.
func (c *Controller) tickC() <-chan time.Time {
	if c.current == nil || c.current.ticker == nil {
		return nil
	}
	return c.current.ticker.C()
}

func (c *Controller) handleSubmit(text string) bool {
	if conversation.IsBlank(text) {
		return false
	}
	if c.state.Processing() {
		if !c.supersede || c.current == nil {
			c.logger.Debug("submit rejected: already processing")
			return false
		}
		c.logger.Info("superseding active submission", "run", c.current.id)
		c.end(StatusCancelled, "")
	}
	agent := c.settings.Agent()
	if agent == nil {
		c.logger.Debug("submit rejected: no agent selected")
		return false
	}

	c.rec.Append(conversation.Message{
		Role:    conversation.RoleUser,
		Content: text,
		SentAt:  c.clock.Now(),
	})
	c.rec.Begin()
	if c.state.Snapshot().Draft != "" {
		c.rec.SetDraft("")
	}

	cc := c.settings.Connection()
	req := agentverse.SubmitRequest{
		Payload: agentverse.Payload{
			Input: text,
			DBConfig: agentverse.DBConfig{
				URL:       cc.URL,
				Username:  cc.Username,
				Password:  cc.Password,
				IndexName: cc.IndexName,
			},
		},
		AgentAddress: agent.Address,
	}

	c.nextID++
	r := &run{id: c.nextID}
	r.ctx, r.cancel = context.WithCancel(c.loopCtx)
	c.current = r

	c.logger.Info("submitting query", "run", r.id, "agent", agent.Name)

	go func() {
		err := c.service.Submit(r.ctx, req)
		c.post(submitAcked{id: r.id, err: err})
	}()
	return true
}

func (c *Controller) onTick() {
	r := c.current
	r.session.AttemptsMade++
	attempt := r.session.AttemptsMade

	if attempt >= r.session.AttemptLimit {
		r.ticker.Stop()
		r.ticker = nil
	}

	r.inFlight++
	c.logger.Debug("polling for result", "run", r.id, "attempt", attempt)

	go func() {
		res, err := c.service.FetchResult(r.ctx)
		c.post(pollSettled{id: r.id, attempt: attempt, result: res, err: err})
	}()
}

func (c *Controller) apply(ev event) {
	r := c.current
	if r == nil || r.id != ev.runID() {
		c.logger.Debug("discarding stale response", "run", ev.runID())
		return
	}

	switch ev := ev.(type) {
	case submitAcked:
		if ev.err != nil {
			c.logger.Warn("submit failed", "run", r.id, "error", ev.err)
			c.end(StatusFailed, MsgGenericError)
			return
		}
		r.session = &PollSession{
			ID:           r.id,
			AttemptLimit: c.attemptLimit,
			Interval:     c.interval,
			Status:       StatusActive,
			StartedAt:    c.clock.Now(),
		}
		r.ticker = c.clock.NewTicker(c.interval)
		c.logger.Debug("submit acknowledged, polling", "run", r.id, "limit", c.attemptLimit, "interval", c.interval)

	case pollSettled:
		r.inFlight--
		switch {
		case ev.err != nil:
			c.logger.Warn("result fetch failed", "run", r.id, "attempt", ev.attempt, "error", ev.err)
			c.end(StatusFailed, MsgGenericError)
		case ev.result.Ready():
			label := ev.result.Source
			if label == "" {
				label = DefaultAgentLabel
			}
			c.rec.Append(conversation.Message{
				Role:       conversation.RoleAgent,
				Content:    ev.result.Output,
				AgentLabel: label,
				SentAt:     c.clock.Now(),
			})
			c.end(StatusSucceeded, "")
		case r.ticker == nil && r.inFlight == 0:
			c.logger.Info("poll attempts exhausted", "run", r.id, "attempts", r.session.AttemptsMade)
			c.end(StatusTimedOut, MsgTimeout)
		}
	}
}

// end finishes the current run with status and clears processing.
func (c *Controller) end(status Status, errMsg string) {
	r := c.current
	c.discard(status)
	c.rec.Finish(errMsg)

	c.logger.Info("submission ended", "run", r.id, "status", status)
}

// discard stops the current run without touching the conversation.
func (c *Controller) discard(status Status) {
	r := c.current
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
	r.cancel()

	if r.session != nil {
		r.session.Status = status
		r.session.EndedAt = c.clock.Now()
		c.last, c.hasLast = *r.session, true
	}
	c.current = nil
}

func (c *Controller) teardown() {
	if c.current != nil {
		c.logger.Debug("controller closing, discarding active run", "run", c.current.id)
		c.discard(StatusCancelled)
	}
}
