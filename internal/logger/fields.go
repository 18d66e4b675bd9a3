package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently
// across log call sites so aggregation/querying doesn't fragment across
// ad-hoc key spellings.
const (
	// Connection & procedure identity
	KeyConnHandle = "conn_handle" // connection handle for correlation
	KeyProcedure  = "procedure"   // procedure kind name (version-exchange, ...)
	KeyRole       = "role"        // "local" or "remote"
	KeyOpcode     = "opcode"      // LLCP opcode value
	KeyState      = "state"       // FSM state name
	KeyEvent      = "event"       // FSM event name

	// Pool accounting
	KeyPool     = "pool"     // pool name: context, tx, notification
	KeyPoolFree = "pool_free"
	KeyPoolCap  = "pool_cap"

	// Outcome
	KeyStatus     = "status"      // outcome taxon: ok, resource-exhausted, protocol-violation, ...
	KeyError      = "error"       // error message
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
)

// ConnHandle returns a slog.Attr for the connection handle.
func ConnHandle(h string) slog.Attr {
	return slog.String(KeyConnHandle, h)
}

// Procedure returns a slog.Attr for the procedure kind name.
func Procedure(name string) slog.Attr {
	return slog.String(KeyProcedure, name)
}

// Role returns a slog.Attr for the local/remote role.
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// Opcode returns a slog.Attr for an LLCP opcode, rendered in hex.
func Opcode(opcode uint8) slog.Attr {
	return slog.String(KeyOpcode, fmt.Sprintf("0x%02X", opcode))
}

// State returns a slog.Attr for an FSM state name.
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Event returns a slog.Attr for an FSM event name.
func Event(event string) slog.Attr {
	return slog.String(KeyEvent, event)
}

// Pool returns a slog.Attr identifying a resource pool by name.
func Pool(name string) slog.Attr {
	return slog.String(KeyPool, name)
}

// PoolCounts returns free/capacity slog.Attrs for a pool.
func PoolCounts(free, cap int) []slog.Attr {
	return []slog.Attr{slog.Int(KeyPoolFree, free), slog.Int(KeyPoolCap, cap)}
}

// Status returns a slog.Attr for an outcome taxon.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog.Attr for an error value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
