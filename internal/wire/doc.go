// Package wire defines the self-describing messages GridDFS's transport
// carries and the small JSON-over-HTTP helpers cmd/griddfs's admin
// commands use against the coordinator's REST surface.
//
// Every transport payload is a discriminated union keyed on MessageType:
// producers set it, consumers switch on it and log-and-discard anything
// they don't recognize rather than trying to coerce it, instead of an
// ad-hoc dynamic dictionary.
package wire
