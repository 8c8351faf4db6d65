package person

// Person is the aggregate root: the consistency boundary that owns a
// version counter and is reconstituted from, and emits, the event
// algebra in package personevent.
//
// Version equals the number of events successfully applied and is
// created at 0, incremented by exactly 1 per applied event.
type Person struct {
	ID           ID
	CoreIdentity CoreIdentity
	Attributes   AttributeSet
	Lifecycle    Lifecycle
	Version      uint64
}
