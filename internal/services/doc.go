// Package services defines the shared error taxonomy and context helpers used
// at the boundaries between the scheduler, the executor, and the HTTP layer.
package services
