package cascade

import "time"

// Snapshot is an immutable copy of every field in the store.
type Snapshot struct {
	fields map[FieldName]Field
}

// NewSnapshot builds a snapshot from fields. Missing fields read as empty.
// It is mainly useful for building queries outside a Controller.
func NewSnapshot(fields ...Field) Snapshot {
	out := Snapshot{fields: make(map[FieldName]Field, len(fields))}
	for _, field := range fields {
		out.fields[field.Name] = field.clone()
	}
	return out
}

// Field returns a copy of the named field.
func (s Snapshot) Field(name FieldName) Field {
	field, ok := s.fields[name]
	if !ok {
		return Field{Name: name}
	}
	return field.clone()
}

// Value returns the selected value of the named field.
func (s Snapshot) Value(name FieldName) string {
	return s.fields[name].Selected
}

// Label returns the label of the selected option of the named field.
func (s Snapshot) Label(name FieldName) string {
	return s.fields[name].SelectedLabel()
}

// Fields returns copies of all fields in form order.
func (s Snapshot) Fields() []Field {
	out := make([]Field, 0, len(Fields))
	for _, name := range Fields {
		out = append(out, s.Field(name))
	}
	return out
}

// Selections maps wire keys to selected values.
func (s Snapshot) Selections() map[string]string {
	out := make(map[string]string, len(Fields))
	for _, name := range Fields {
		out[name.String()] = s.Value(name)
	}
	return out
}

// Update is delivered to listeners after a store mutation. Field is
// FieldUnknown for results updates.
type Update struct {
	Field   FieldName
	State   Field
	Results *ResultsView
}

// Listener observes store mutations. Listeners run synchronously while the
// controller holds its lock and must not call back into the controller.
type Listener func(Update)

type listenerEntry struct {
	id int
	fn Listener
}

type baseline struct {
	institution string
	entries     []OptionEntry
}

// fieldStore owns the per-session field state. It is not safe for concurrent
// use; the Controller serialises access.
type fieldStore struct {
	fields    map[FieldName]*Field
	baselines map[FieldName]baseline
	traces    map[FieldName]*traceRing
	listeners []listenerEntry
	nextID    int
	now       func() time.Time
}

func newFieldStore(cfg config) *fieldStore {
	s := &fieldStore{
		fields:    make(map[FieldName]*Field, len(Fields)),
		baselines: map[FieldName]baseline{},
		traces:    make(map[FieldName]*traceRing, len(Fields)),
		now:       cfg.now,
	}
	for _, name := range Fields {
		s.traces[name] = newTraceRing(cfg.traceLimit)
		field := &Field{Name: name, Status: StatusIdle}
		switch {
		case name == FieldSchedule:
			field.Options = withPrompt(name, cfg.scheduleOptions)
			field.Status = StatusReady
		case name == FieldDeliveryMethod:
			field.Options = withPrompt(name, cfg.deliveryOptions)
			field.Status = StatusReady
		case len(cfg.graph.Upstream(name)) > 0:
			field.Options = []OptionEntry{SentinelEntry(placeholderInstitutionFirst)}
		default:
			field.Options = withPrompt(name, nil)
		}
		s.fields[name] = field
	}
	return s
}

func (s *fieldStore) get(name FieldName) Field {
	field, ok := s.fields[name]
	if !ok {
		return Field{Name: name}
	}
	return field.clone()
}

func (s *fieldStore) snapshot() Snapshot {
	out := Snapshot{fields: make(map[FieldName]Field, len(s.fields))}
	for name, field := range s.fields {
		out.fields[name] = field.clone()
	}
	return out
}

// issue bumps the field's sequence so any response still in flight for it is
// treated as stale.
func (s *fieldStore) issue(name FieldName) uint64 {
	field := s.fields[name]
	field.Seq++
	return field.Seq
}

func (s *fieldStore) current(name FieldName, seq uint64) bool {
	field, ok := s.fields[name]
	return ok && field.Seq == seq
}

// mutate applies fn to the field and notifies listeners with the result.
func (s *fieldStore) mutate(name FieldName, fn func(*Field)) Field {
	field := s.fields[name]
	fn(field)
	state := field.clone()
	s.notify(Update{Field: name, State: state})
	return state
}

// placeholder resets a dependent whose upstream selection is gone.
func (s *fieldStore) placeholder(name FieldName) Field {
	return s.mutate(name, func(f *Field) {
		f.Selected = ""
		f.Options = []OptionEntry{SentinelEntry(placeholderInstitutionFirst)}
		f.Status = StatusIdle
		f.Err = nil
	})
}

func (s *fieldStore) remember(name FieldName, institution string, entries []OptionEntry) {
	s.baselines[name] = baseline{institution: institution, entries: cloneOptions(entries)}
}

func (s *fieldStore) baselineFor(name FieldName, institution string) ([]OptionEntry, bool) {
	b, ok := s.baselines[name]
	if !ok || institution == "" || b.institution != institution {
		return nil, false
	}
	return cloneOptions(b.entries), true
}

func (s *fieldStore) forgetBaselines() {
	s.baselines = map[FieldName]baseline{}
}

func (s *fieldStore) trace(name FieldName, entry TraceEntry) {
	ring, ok := s.traces[name]
	if !ok {
		return
	}
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	ring.add(entry)
}

func (s *fieldStore) traceOf(name FieldName) Trace {
	ring, ok := s.traces[name]
	if !ok {
		return Trace{Field: name}
	}
	return ring.snapshot(name)
}

func (s *fieldStore) subscribe(fn Listener) func() {
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *fieldStore) notify(update Update) {
	for _, entry := range s.listeners {
		entry.fn(update)
	}
}
