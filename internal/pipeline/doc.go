// Package pipeline runs one incremental sync of a scope.
//
// A run moves through Authenticating, then Listing, Filtering and
// Downloading for each year (newest first), then Summarizing. A rate-limit
// page moves Downloading to Aborted, which skips the remaining years but
// still produces a summary. Authentication failure ends the run before any
// year is listed.
package pipeline
