// Package state keeps the per-scope processing ledger: which track-log files
// were handled and which calendar dates are done. The ledger is one JSON
// document loaded at Open and rewritten wholesale by Save. A sibling lock file
// keeps two runs from working the same scope at once.
package state
