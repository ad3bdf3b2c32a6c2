// Package conversation holds the chat history shown to the user.
//
// New returns a read handle (State) and a write handle (Recorder). Only the
// dispatch controller holds the Recorder, so every mutation of the history,
// the processing flag, the visible error and the draft goes through it.
//
// History is append-only. Snapshot returns a copy whose Messages slice never
// aliases internal storage. Every mutation bumps Version and is fanned out to
// Subscribe channels; slow subscribers drop snapshots rather than block the
// writer.
package conversation
