package tfx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tagview.tfx")

// DiagnosticKind classifies a recoverable evaluation failure.
type DiagnosticKind uint8

const (
	// Unimplemented: an opcode or extern field with unknown semantics.
	Unimplemented DiagnosticKind = iota
	// InvalidType: a value of the wrong kind was read or popped.
	InvalidType
	// ExternNotSet: the extern has no value this frame.
	ExternNotSet
	// Malformed: the bytecode itself is inconsistent, e.g. a stack
	// underflow or an out-of-range constant index.
	Malformed
)

func (k DiagnosticKind) String() string {
	switch k {
	case Unimplemented:
		return "unimplemented"
	case InvalidType:
		return "invalid type"
	case ExternNotSet:
		return "extern not set"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Diagnostic is one distinct failure and the number of times it occurred.
type Diagnostic struct {
	Message string
	Kind    DiagnosticKind
	Count   uint64
}

type diagKey struct {
	msg  string
	kind DiagnosticKind
}

// Diagnostics collects distinct evaluation failures across many calls.
// Each (message, kind) pair is stored once with a repeat counter. Safe for
// concurrent use; the zero value is ready.
type Diagnostics struct {
	mu      sync.Mutex
	entries map[diagKey]uint64
}

// NewDiagnostics returns an empty sink.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

// Record counts one occurrence. A nil sink discards it.
func (d *Diagnostics) Record(kind DiagnosticKind, msg string) {
	if d == nil {
		return
	}
	k := diagKey{msg, kind}
	d.mu.Lock()
	if d.entries == nil {
		d.entries = make(map[diagKey]uint64)
	}
	n := d.entries[k]
	d.entries[k] = n + 1
	d.mu.Unlock()
	if n == 0 {
		log.Debugf("%s: %s", kind, msg)
	}
}

// Recordf formats the message and records it.
func (d *Diagnostics) Recordf(kind DiagnosticKind, format string, args ...any) {
	if d == nil {
		return
	}
	d.Record(kind, fmt.Sprintf(format, args...))
}

// Snapshot returns every entry ordered by message, then kind.
func (d *Diagnostics) Snapshot() []Diagnostic {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	out := make([]Diagnostic, 0, len(d.entries))
	for k, n := range d.entries {
		out = append(out, Diagnostic{Message: k.msg, Kind: k.kind, Count: n})
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Message != out[j].Message {
			return out[i].Message < out[j].Message
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Len returns the number of distinct entries.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Count returns the repeat count of one entry.
func (d *Diagnostics) Count(kind DiagnosticKind, msg string) uint64 {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries[diagKey{msg, kind}]
}

// Clear drops every entry.
func (d *Diagnostics) Clear() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.entries = nil
	d.mu.Unlock()
}
