// Package api exposes the REST surface of the settlement daemon: fillers
// submit fill jobs, poll their progress, and read aggregate statistics. The
// handlers are thin adapters over the fills service; authentication and
// Prometheus-style metrics are wired in as middleware.
package api
