package replication

import "errors"

// ErrNoBuffers is returned by RegisterReplica when every replica slot
// is already in use.
var ErrNoBuffers = errors.New("replication: no buffers: all replica slots in use")

// ErrNotSupported is returned when an RPC contradicts the node's
// current, already-fixed mode.
var ErrNotSupported = errors.New("replication: not supported in current mode")

// ErrBadArity is returned when an RPC payload has the wrong number of
// fields.
var ErrBadArity = errors.New("replication: bad arity")

// ErrStreamSetupFailed is returned by RegisterReplica when the new
// replica's reader cannot be positioned in the ring because its start
// anchor is no longer retained there.
var ErrStreamSetupFailed = errors.New("replication: stream setup failed")
