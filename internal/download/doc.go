// Package download transfers resolved track logs to disk.
//
// Each file runs through a small state machine with an explicit attempt
// counter: an attempt ends in success, a validation failure or transient error
// (both retried after 2^attempt seconds), a client error (the file is
// abandoned) or a rate-limit page (the whole run is abandoned). Existing files
// are skipped unless forced, except HTML error pages left by earlier runs,
// which are deleted and fetched again.
package download
