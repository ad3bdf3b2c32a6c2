// Package agentverse is the HTTP client for the remote agent-execution service.
//
// The service exposes three JSON endpoints (paths are configurable):
//
//	GET  /agents/search?query=<q>   -> [{"address","name"}, ...]
//	POST /queries                    {"payload":{"input","db_config"},"agentAddress"}
//	GET  /queries/result             -> {"output","source"} once ready
//
// The result endpoint answers non-200 (usually 404) while the answer is
// pending; FetchResult reports that as (nil, nil) so callers can keep polling.
// A 200 with an unparseable body is an error.
//
// Requests can carry an HS256 bearer token (auth.BearerTransport) and be
// throttled with a token-bucket limiter.
package agentverse
