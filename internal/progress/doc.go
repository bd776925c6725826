// Package progress broadcasts per-job step events to live subscribers.
package progress
