// Package daemon runs the background processing service: it enforces
// single-instance execution, wires the task queue workers to their
// collaborators, serves the HTTP API, and drives periodic maintenance.
package daemon
