// Package dedupe remembers request IDs for a bounded time so retried
// submissions can be acknowledged without being processed twice.
package dedupe
