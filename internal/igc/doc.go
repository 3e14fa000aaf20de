// Package igc validates and reads IGC track logs: the first-line sniff used to
// tell real logs from HTML error pages, Latin-1 header parsing for date and
// pilot, and B-record fixes for distance and speed.
package igc
