// Package mapgen renders a scope's track logs into a self-contained Leaflet
// page (index.html) plus a flights.json sidecar.
package mapgen
