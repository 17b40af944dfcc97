package engine

// Phase is the connection epoch state. The connected and initialized flags
// are derived from it.
//
//	Disconnected -> Connecting -> Connected -> Initialized
//	Initialized -> Interrupted -> Initialized
//	any -> Disconnected on transport loss, any -> Closed on teardown
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseInitialized
	PhaseInterrupted
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseInitialized:
		return "initialized"
	case PhaseInterrupted:
		return "interrupted"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateReader is the read-only view handed to the publisher.
type StateReader interface {
	Connected() bool
	Initialized() bool
}

// ConnectionState is written only by the consumer handlers.
type ConnectionState struct {
	phase Phase
}

var _ StateReader = (*ConnectionState)(nil)

func (s *ConnectionState) Phase() Phase {
	return s.phase
}

// Connected is true once the transport handshake was acknowledged, until the
// transport is lost.
func (s *ConnectionState) Connected() bool {
	switch s.phase {
	case PhaseConnected, PhaseInitialized, PhaseInterrupted:
		return true
	default:
		return false
	}
}

// Initialized is true once the session handshake completed, until the next
// interruption or transport loss.
func (s *ConnectionState) Initialized() bool {
	return s.phase == PhaseInitialized
}

func (s *ConnectionState) set(p Phase) (from Phase, changed bool) {
	from = s.phase
	if from == PhaseClosed || from == p {
		return from, false
	}
	s.phase = p
	return from, true
}

func (s *ConnectionState) transportUp() (Phase, bool) {
	return s.set(PhaseConnecting)
}

// transportLost is the epoch reset.
func (s *ConnectionState) transportLost() (Phase, bool) {
	return s.set(PhaseDisconnected)
}

func (s *ConnectionState) acknowledge() (Phase, bool) {
	return s.set(PhaseConnected)
}

func (s *ConnectionState) interrupt() (Phase, bool) {
	if s.phase != PhaseInitialized {
		return s.phase, false
	}
	return s.set(PhaseInterrupted)
}

func (s *ConnectionState) initialize() (Phase, bool) {
	return s.set(PhaseInitialized)
}

func (s *ConnectionState) close() (Phase, bool) {
	from := s.phase
	if from == PhaseClosed {
		return from, false
	}
	s.phase = PhaseClosed
	return from, true
}
