// Package metadata stores per-(scope, year) flight records next to the
// downloaded track logs in `{downloads}/{scope}/{year}/metadata.json`.
//
// Records are keyed by dataset identifier. They are never deleted; a
// filesystem reconciliation only flips their status between downloaded and
// missing. Writes are whole-document read-modify-write and assume a single
// writer per scope.
package metadata
