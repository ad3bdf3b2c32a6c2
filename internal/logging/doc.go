// Package logging builds the slog loggers used by the graphrag binaries:
// a coloured text handler for terminals and slog's JSON handler for files.
package logging
