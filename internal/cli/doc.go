// Package cli parses the command line of the immich client, applies the
// IMMICH_* environment overrides and dispatches to one command handler. It
// also decides the process exit code.
package cli
