// Package flight defines the flight descriptor produced by the site adapter,
// the scope a run operates on, and the naming rules that turn a descriptor
// into a stable on-disk filename.
package flight
