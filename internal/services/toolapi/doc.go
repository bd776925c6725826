// Package toolapi implements the JSON tool-call protocol shared by all
// collaborator services.
package toolapi
