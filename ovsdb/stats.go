package ovsdb

// ClientStats reports a Client's live bookkeeping: in-flight RPC callbacks
// and background echo-loop outcomes.
type ClientStats struct {
	Callbacks CallbackStats
	EchoLoop  EchoLoopStats
}

// CallbackStats reports the number of RPCs currently awaiting a reply.
type CallbackStats struct {
	Current int
}

// EchoLoopStats reports the outcome of background "echo" liveness probes,
// both self-initiated (EchoInterval) and answered on the server's behalf.
type EchoLoopStats struct {
	Success int
	Failure int
}
