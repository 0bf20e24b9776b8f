package gorpc

import "errors"

// Sentinel errors surfaced by the client transport. Server-side dispatch
// failures never surface as Go errors to the caller of Accept/serveConn;
// they are folded into the Status returned to the remote client instead.
var (
	ErrInvalidArg       = errors.New("gorpc: invalid argument")
	ErrResolve          = errors.New("gorpc: dns resolution failed")
	ErrConnectFailed    = errors.New("gorpc: connect failed")
	ErrAlreadyConnected = errors.New("gorpc: already connected")
	ErrNotConnected     = errors.New("gorpc: not connected")
	ErrEmptyReplyWanted = errors.New("gorpc: expected empty reply for absent response message")
	ErrReplyRequired    = errors.New("gorpc: reply message required but response was empty")
)
