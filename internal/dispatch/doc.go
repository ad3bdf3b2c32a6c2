// Package dispatch submits queries to the remote agent service and polls for
// their answers.
//
// A Controller runs one goroutine that owns all session state. Public calls
// (Submit, Cancel, RetryPrior, LastSession) are executed on that goroutine;
// network calls run in their own goroutines and report back as events tagged
// with the run they belong to. Events for a run that is no longer current are
// dropped, so a cancelled or superseded session can never append a message.
//
// Lifecycle of one submission:
//
//	Submit -> user message appended, processing set
//	       -> POST fails: processing cleared, generic error
//	       -> POST acknowledged: PollSession Active, ticker started
//	tick   -> attempt++, one result fetch
//	       -> output present: agent message appended, Succeeded
//	       -> fetch error: Failed, generic error
//	       -> limit reached and last fetch pending: TimedOut, timeout error
//
// Fetches may overlap; outcomes are applied in the order they arrive and the
// first terminal outcome ends the session.
package dispatch
