// Package site adapts the contest website into a stream of flight
// descriptors.
//
// Listings come from two places: the airfield JSON endpoint, which is paged
// in batches of at most 50 rows, and the authenticated pilot's flightbook
// page. Every surviving row costs a second request to its flight-detail page
// because only that page carries the download link. Rows are filtered by
// known identifiers and minimum score before that request is made. Requests
// are paced with a token bucket, detail fetches run behind a circuit breaker,
// and a fixed delay separates one year from the next.
package site
