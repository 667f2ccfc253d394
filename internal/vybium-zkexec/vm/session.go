package vm

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vybium/vybium-zkexec/internal/vybium-zkexec/bench"
)

// ExitStatus is how a guest run ended.
type ExitStatus uint8

const (
	ExitHalted ExitStatus = iota
	ExitGuestFailed
	ExitMalformedInput
)

func (s ExitStatus) String() string {
	switch s {
	case ExitHalted:
		return "halted"
	case ExitGuestFailed:
		return "guest_failed"
	case ExitMalformedInput:
		return "malformed_input"
	default:
		return fmt.Sprintf("exit(%d)", uint8(s))
	}
}

// Exit is the terminal state of a session. Err is nil only for ExitHalted.
type Exit struct {
	Status ExitStatus
	Err    error
}

// Session is the result of one guest run. Sessions are never persisted; only
// a receipt derived from a halted session leaves the engine.
type Session struct {
	ID       uuid.UUID
	ImageID  ImageID
	Program  *Program
	Exit     Exit
	Journal  []byte
	Cycles   uint64
	Samples  []bench.Sample
	Trace    *TraceRecorder
	Started  time.Time
	Duration time.Duration
}

// Halted reports whether the guest ran to completion.
func (s *Session) Halted() bool {
	return s.Exit.Status == ExitHalted
}

// Err returns the guest failure, or nil for a halted session.
func (s *Session) Err() error {
	return s.Exit.Err
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s %s: %s, %d cycles, %d journal bytes",
		s.ID, s.Program, s.Exit.Status, s.Cycles, len(s.Journal))
}
