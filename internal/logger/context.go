package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection-scoped logging context.
type LogContext struct {
	ConnHandle string    // connection handle / identity for correlation
	Procedure  string    // procedure kind name (version-exchange, feature-exchange, ...)
	Role       string    // "local" or "remote"
	Opcode     uint8     // LLCP opcode in play, if any
	State      string    // current FSM state
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given connection handle.
func NewLogContext(connHandle string) *LogContext {
	return &LogContext{
		ConnHandle: connHandle,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnHandle: lc.ConnHandle,
		Procedure:  lc.Procedure,
		Role:       lc.Role,
		Opcode:     lc.Opcode,
		State:      lc.State,
		StartTime:  lc.StartTime,
	}
}

// WithProcedure returns a copy with the procedure kind and role set.
func (lc *LogContext) WithProcedure(procedure, role string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
		clone.Role = role
	}
	return clone
}

// WithState returns a copy with the FSM state set.
func (lc *LogContext) WithState(state string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.State = state
	}
	return clone
}

// WithOpcode returns a copy with the opcode set.
func (lc *LogContext) WithOpcode(opcode uint8) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Opcode = opcode
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
