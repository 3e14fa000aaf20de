// Package preflight provides readiness checks for the filesystem paths,
// credentials and remote services olcsync depends on.
//
// The "olcsync doctor" command runs RunAll and prints one row per check.
// Object storage checks are skipped when no bucket is configured.
package preflight
