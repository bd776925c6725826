// Package textutil provides dialogue parsing and name sanitization helpers
// shared by the speaker deriver and the pipeline stages.
package textutil
