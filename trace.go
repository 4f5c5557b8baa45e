package cascade

import (
	"encoding/json"
	"time"
)

const defaultTraceLimit = 64

// Trace captures the resolution history of one field: every request issued
// for it and what happened to the response.
type Trace struct {
	Field   FieldName    `json:"field"`
	Entries []TraceEntry `json:"entries"`
}

// TraceEntry records one step in a field's history.
type TraceEntry struct {
	Seq     uint64    `json:"seq"`
	Action  string    `json:"action"`
	Level   string    `json:"level,omitempty"`
	Scope   string    `json:"scope,omitempty"`
	Outcome Outcome   `json:"outcome,omitempty"`
	Value   string    `json:"value,omitempty"`
	Count   int       `json:"count,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Trace actions.
const (
	TraceSelect   = "select"
	TraceReset    = "reset"
	TraceRestore  = "restore"
	TraceDispatch = "dispatch"
	TraceComplete = "complete"
	TracePrecheck = "precondition"
)

// Last returns the most recent entry, if any.
func (t Trace) Last() (TraceEntry, bool) {
	if len(t.Entries) == 0 {
		return TraceEntry{}, false
	}
	return t.Entries[len(t.Entries)-1], true
}

// Count returns how many entries match outcome.
func (t Trace) Count(outcome Outcome) int {
	total := 0
	for _, entry := range t.Entries {
		if entry.Outcome == outcome {
			total++
		}
	}
	return total
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// traceRing keeps the newest limit entries.
type traceRing struct {
	limit   int
	entries []TraceEntry
}

func newTraceRing(limit int) *traceRing {
	if limit <= 0 {
		limit = defaultTraceLimit
	}
	return &traceRing{limit: limit}
}

func (r *traceRing) add(entry TraceEntry) {
	r.entries = append(r.entries, entry)
	if overflow := len(r.entries) - r.limit; overflow > 0 {
		r.entries = append(r.entries[:0:0], r.entries[overflow:]...)
	}
}

func (r *traceRing) snapshot(field FieldName) Trace {
	return Trace{
		Field:   field,
		Entries: append([]TraceEntry(nil), r.entries...),
	}
}
