// Package queue defines the persisted job model and the SQLite-backed store
// used by the scheduler and the pipeline executor.
package queue
