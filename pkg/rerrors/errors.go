// Package rerrors defines the router's error taxonomy (spec §7): which
// kinds are fatal at startup and which are logged-and-continue at runtime.
package rerrors

import "errors"

var (
	// ErrBind is a socket creation failure. Fatal at startup.
	ErrBind = errors.New("bind error")
	// ErrInvalidRelation is an unknown relation token in a neighbor spec.
	// Fatal at startup.
	ErrInvalidRelation = errors.New("invalid relation")
	// ErrParse is malformed JSON or an unrecognized message type. Logged
	// and the datagram is dropped; the loop continues.
	ErrParse = errors.New("parse error")
	// ErrSend is a UDP send failure. Logged; delivery is best-effort.
	ErrSend = errors.New("send error")
)
