// Package api exposes the daemon's HTTP surface: job submission and queue
// management, live step streaming over SSE and websockets, runtime settings,
// and post-completion actions.
package api
