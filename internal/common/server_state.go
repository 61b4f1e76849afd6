// server_state.go - Process lifecycle state exposed by the health check

package common

import "sync/atomic"

// ServerStatus is the process lifecycle state.
type ServerStatus string

const (
	StatusWarming ServerStatus = "warming"
	StatusReady   ServerStatus = "ready"
)

// ServerState moves one way from warming to ready once storage and the
// startup sweep are confirmed live.
type ServerState struct {
	ready atomic.Bool
}

// NewServerState returns a state in warming.
func NewServerState() *ServerState {
	return &ServerState{}
}

// MarkReady transitions to ready. It reports whether this call made the transition.
func (s *ServerState) MarkReady() bool {
	return s.ready.CompareAndSwap(false, true)
}

// Status returns the current lifecycle state.
func (s *ServerState) Status() ServerStatus {
	if s.ready.Load() {
		return StatusReady
	}
	return StatusWarming
}
