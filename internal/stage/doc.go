// Package stage defines the handler contract and shared run state for
// pipeline stages.
package stage
