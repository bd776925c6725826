// Package speaker derives default voice profiles from tagged dialogue text
// and validates caller-supplied profile payloads. Derivation is a pure
// function of the text; no collaborator services are involved.
package speaker
