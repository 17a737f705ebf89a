package emit

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use: a single Emitter may
// receive events from many runs at once. Emit must not panic and should
// not block the run; a slow or failing backend should buffer, drop, or
// log internally rather than stall execution.
type Emitter interface {
	Emit(event Event)
}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter combines several emitters into one. Nil entries are
// skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards the event to every wrapped emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
