// Package settings persists the user's connection config, selected agent and
// selected mode.
//
// Each value lives in its own slot of a store.Backend and is written
// immediately on save:
//
//	connection_config  {"url","username","password","index_name"}
//	selected_agent     {"address","name"}
//	selected_mode      plain string
//	agent:<mode>       per-mode cache of resolved agents
//
// Absent slots load as defaults (username "neo4j", index "entity"). The store
// keeps an in-memory copy so the dispatch path can read settings without I/O.
//
// When a Sealer is configured the password is stored as
// "sealed:v1:<base64>" using NaCl secretbox. Unsealed values from older
// databases are read as-is.
package settings
