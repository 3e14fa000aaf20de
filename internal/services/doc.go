// Package services defines shared utilities consumed by the pipeline
// components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, scopes, years, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper. The markers mirror the
//     failure taxonomy of a run: authentication and configuration failures
//     are fatal, rate limits abort remaining downloads but keep results,
//     scraping and download failures are recovered at year and file level.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the pipeline.
package services
