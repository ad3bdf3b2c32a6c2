// ABOUTME: Interactive chat loop and one-shot ask for graphrag-tui
// ABOUTME: Forwards input to the dispatcher and prints conversation snapshots as they change

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/graphrag-assistant/internal/conversation"
	"github.com/2389/graphrag-assistant/internal/resolver"
)

var (
	errColor  = color.New(color.FgRed)
	hintColor = color.New(color.FgHiBlack)
	userColor = color.New(color.FgBlue, color.Bold)
	agentTag  = color.New(color.FgGreen, color.Bold)
)

// printer writes conversation changes to out. It is safe for concurrent use.
type printer struct {
	mu         sync.Mutex
	out        io.Writer
	shown      int
	lastErr    string
	processing bool
}

func newPrinter(out io.Writer, initial conversation.Snapshot) *printer {
	return &printer{out: out, shown: len(initial.Messages), lastErr: initial.LastError}
}

// show prints agent messages and errors that appeared since the last call.
// User messages are not echoed; the user just typed them.
func (p *printer) show(s conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Processing && !p.processing {
		hintColor.Fprintln(p.out, "… waiting for answer")
	}
	p.processing = s.Processing

	for _, m := range s.Messages[min(p.shown, len(s.Messages)):] {
		if m.Role == conversation.RoleAgent {
			printMessage(p.out, m)
		}
	}
	if len(s.Messages) > p.shown {
		p.shown = len(s.Messages)
	}

	if s.LastError != "" && s.LastError != p.lastErr {
		errColor.Fprintf(p.out, "[error] %s\n", s.LastError)
	}
	p.lastErr = s.LastError
}

func printMessage(w io.Writer, m conversation.Message) {
	stamp := hintColor.Sprint(m.SentAt.Format(time.Kitchen))
	switch m.Role {
	case conversation.RoleUser:
		fmt.Fprintf(w, "%s %s\n%s\n", userColor.Sprint("You"), stamp, m.Content)
	default:
		fmt.Fprintf(w, "%s %s\n%s", agentTag.Sprint(m.AgentLabel), stamp, renderMarkdown(m.Content))
	}
	fmt.Fprintln(w)
}

// runChat is the interactive loop. It returns when the user quits, stdin
// closes or ctx is cancelled.
func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	if msg := a.restoreAgent(ctx); msg != "" {
		errColor.Fprintf(out, "[error] %s\n", msg)
	}
	printBanner(out, a)

	subCtx, stop := context.WithCancel(ctx)
	ch := a.state.Subscribe(subCtx)
	p := newPrinter(out, a.state.Snapshot())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range ch {
			p.show(s)
		}
	}()
	defer wg.Wait()
	defer stop()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt(a))

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
				return
			}
			if err := scanner.Err(); err != nil {
				errCh <- err
				return
			}
			errCh <- io.EOF
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		quit, err := handleLine(ctx, a, strings.TrimSpace(input), out)
		if err != nil {
			errColor.Fprintf(out, "[error] %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func prompt(a *app) string {
	if agent := a.settings.Agent(); agent != nil {
		return fmt.Sprintf("[%s]> ", agent.Name)
	}
	return "> "
}

// handleLine runs one REPL input. It reports whether the loop should exit.
func handleLine(ctx context.Context, a *app, line string, out io.Writer) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		submit(a, line, out)
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		printHelp(out)

	case "/modes":
		printModes(ctx, a, out)

	case "/mode":
		if arg == "" {
			mode, err := runModeForm(a.resolver.Modes(), a.settings.Mode())
			if err != nil {
				return false, err
			}
			arg = mode
		}
		mode, ok := a.lookupMode(arg)
		if !ok {
			return false, fmt.Errorf("unknown mode %q (see /modes)", arg)
		}
		useMode(ctx, a, mode, out)

	case "/config":
		return false, configure(ctx, a, out)

	case "/retry":
		text, ok := a.ctrl.RetryPrior()
		if !ok {
			hintColor.Fprintln(out, "Nothing to retry.")
			break
		}
		fmt.Fprintf(out, "Draft restored: %s\n", text)
		hintColor.Fprintln(out, "Type /send to submit it again.")

	case "/send":
		draft := a.state.Snapshot().Draft
		if conversation.IsBlank(draft) {
			hintColor.Fprintln(out, "No draft to send. Use /retry first.")
			break
		}
		submit(a, draft, out)

	case "/cancel":
		if a.ctrl.Cancel() {
			fmt.Fprintln(out, "Cancelled.")
		} else {
			hintColor.Fprintln(out, "Nothing in progress.")
		}

	case "/history":
		printHistory(a, out)

	case "/status":
		printStatus(a, out)

	default:
		return false, fmt.Errorf("unknown command %s (see /help)", cmd)
	}
	return false, nil
}

func submit(a *app, text string, out io.Writer) {
	if a.ctrl.Submit(text) {
		return
	}
	if hint := a.submitBlocker(); hint != "" {
		hintColor.Fprintln(out, hint)
	}
}

func useMode(ctx context.Context, a *app, mode string, out io.Writer) {
	hintColor.Fprintf(out, "Searching for %s…\n", mode)
	agent, err := a.selectMode(ctx, mode)
	if err != nil {
		errColor.Fprintf(out, "[error] %s\n", resolver.UserMessage(err, mode))
		return
	}
	fmt.Fprintf(out, "Now using %s ", agent.Name)
	hintColor.Fprintf(out, "(%s)\n", agent.Address)
}

func configure(ctx context.Context, a *app, out io.Writer) error {
	res, err := runConfigureForm(a.settings.Connection(), a.resolver.Modes(), a.settings.Mode())
	if err != nil {
		return err
	}
	if err := a.settings.SaveConfig(ctx, res.Connection); err != nil {
		return err
	}
	fmt.Fprintln(out, "Connection saved.")

	if res.Mode != "" && (res.Mode != a.settings.Mode() || a.settings.Agent() == nil) {
		useMode(ctx, a, res.Mode, out)
	}
	return nil
}

// runAsk submits one query and prints the answer. It fails when the
// submission ends with an error.
func runAsk(ctx context.Context, a *app, query string, out io.Writer) error {
	if msg := a.restoreAgent(ctx); msg != "" {
		return errors.New(msg)
	}

	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	ch := a.state.Subscribe(subCtx)
	if !a.ctrl.Submit(query) {
		if hint := a.submitBlocker(); hint != "" {
			return errors.New(hint)
		}
		return errors.New("query rejected")
	}

	for {
		select {
		case <-ctx.Done():
			a.ctrl.Cancel()
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return errors.New("conversation closed")
			}
		}

		s := a.state.Snapshot()
		if s.Processing {
			continue
		}
		if s.LastError != "" {
			return errors.New(s.LastError)
		}
		if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == conversation.RoleAgent {
			fmt.Fprint(out, renderMarkdown(s.Messages[n-1].Content))
		}
		return nil
	}
}

func printBanner(out io.Writer, a *app) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(out, "graphrag-tui")
	hintColor.Fprintf(out, "service: %s\n", a.cfg.Service.BaseURL)

	if mode := a.settings.Mode(); mode != "" {
		fmt.Fprintf(out, "mode:    %s\n", mode)
	}
	if !a.settings.Connection().Saved() {
		hintColor.Fprintln(out, "No database connection saved. Run /config to set one.")
	}
	if a.settings.Agent() == nil {
		hintColor.Fprintln(out, "Select an assistant mode with /modes and /mode <n>.")
	}
	fmt.Fprintln(out, "Type a question and press Enter. /help for commands.")
	fmt.Fprintln(out)
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /modes           List assistant modes")
	fmt.Fprintln(out, "  /mode [n|name]   Select a mode and find its agent")
	fmt.Fprintln(out, "  /config          Edit the database connection")
	fmt.Fprintln(out, "  /retry           Restore your last question as a draft")
	fmt.Fprintln(out, "  /send            Submit the draft")
	fmt.Fprintln(out, "  /cancel          Abandon the question in progress")
	fmt.Fprintln(out, "  /history         Show the conversation")
	fmt.Fprintln(out, "  /status          Show mode, agent and connection")
	fmt.Fprintln(out, "  /help            Show this help")
	fmt.Fprintln(out, "  /quit            Exit")
}

func printModes(ctx context.Context, a *app, out io.Writer) {
	current := a.settings.Mode()
	for i, m := range a.resolver.Modes() {
		marker := " "
		if m == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %d. %s", marker, i+1, m)
		if cached, ok, err := a.settings.CachedAgent(ctx, m); err == nil && ok {
			hintColor.Fprintf(out, "  (%s)", cached.Address)
		}
		fmt.Fprintln(out)
	}
}

func printHistory(a *app, out io.Writer) {
	s := a.state.Snapshot()
	if len(s.Messages) == 0 {
		hintColor.Fprintln(out, "No messages yet.")
		return
	}
	for _, m := range s.Messages {
		printMessage(out, m)
	}
}

func printStatus(a *app, out io.Writer) {
	snap := a.settings.Snapshot()
	mode := snap.Mode
	if mode == "" {
		mode = "(none)"
	}
	fmt.Fprintf(out, "mode:       %s\n", mode)
	if snap.Agent != nil {
		fmt.Fprintf(out, "agent:      %s (%s)\n", snap.Agent.Name, snap.Agent.Address)
	} else {
		fmt.Fprintln(out, "agent:      (none)")
	}
	fmt.Fprintf(out, "database:   %s\n", describeConnection(snap.Connection.URL, snap.Connection.Username, snap.Connection.IndexName))

	state := a.state.Snapshot()
	fmt.Fprintf(out, "messages:   %d\n", len(state.Messages))
	fmt.Fprintf(out, "processing: %t\n", state.Processing)
	if sess, ok := a.ctrl.LastSession(); ok {
		fmt.Fprintf(out, "last poll:  %s after %d/%d attempts\n", sess.Status, sess.AttemptsMade, sess.AttemptLimit)
	}
}

func describeConnection(url, user, index string) string {
	if url == "" {
		return "(not configured)"
	}
	return fmt.Sprintf("%s as %s, index %s", url, user, index)
}
