// Package main hosts the olcsync CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the download run itself, listing,
// ledger and metadata maintenance, map rendering, object storage upload and
// sync, catalog queries and a preflight doctor. It centralizes configuration
// resolution and structured logging setup so subcommands can focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
