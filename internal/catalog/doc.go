// Package catalog indexes downloaded flights and run history in SQLite.
//
// The JSON stores next to the track logs stay authoritative; the catalog is
// a queryable projection that can be rebuilt from them at any time.
package catalog
