package internal

// Outcome is the single terminal result of an operation, a value
// or an error, never both.
type Outcome struct {
	Value interface{}
	Err   error
}

// Callback invoked with the outcome of an operation. Callbacks
// run on the callback executor, never on the protocol path.
type Callback func(Outcome)

// A callback invocation discovered while stepping one of the
// state machines, queued for the callback executor.
type Completion struct {
	Callback Callback
	Outcome  Outcome
}

// Operation couples a program with the callbacks observing it.
// Program is the original first instruction, kept so a restart
// resumes from the very beginning.
type Operation struct {
	Program  Program
	Callback Callback

	// Optional sink receiving values emitted by the program
	// before it terminates. May be nil.
	OnValue Callback
}

// PendingEntry records everything needed to resume a suspended
// program when the response for its correlation identifier
// arrives: the expected command, the payload decoder, the
// continuation and the owning operation.
type PendingEntry struct {
	Expected  byte
	Decode    func(c Codec, payload []byte) (interface{}, error)
	Resume    func(decoded interface{}) Program
	Operation Operation
}

// Pendings is the correlation table, a value mapping correlation
// identifiers to pending entries. Every write returns a new
// table, the receiver is never changed, so feeding the same
// inputs twice always produces the same table.
type Pendings struct {
	entries map[UID]PendingEntry
}

func NewPendings() Pendings {
	return Pendings{entries: make(map[UID]PendingEntry)}
}

// Insert returns a table that also holds the given entry.
func (p Pendings) Insert(id UID, entry PendingEntry) Pendings {
	next := make(map[UID]PendingEntry, len(p.entries)+1)
	for k, v := range p.entries {
		next[k] = v
	}
	next[id] = entry
	return Pendings{entries: next}
}

// Remove returns the entry for the identifier, a table without
// it, and whether it was present. An entry leaves the table
// exactly once, on match, mismatch, abort or teardown.
func (p Pendings) Remove(id UID) (PendingEntry, Pendings, bool) {
	entry, ok := p.entries[id]
	if !ok {
		return PendingEntry{}, p, false
	}
	next := make(map[UID]PendingEntry, len(p.entries)-1)
	for k, v := range p.entries {
		if k != id {
			next[k] = v
		}
	}
	return entry, Pendings{entries: next}, true
}

// Lookup never mutates.
func (p Pendings) Lookup(id UID) (PendingEntry, bool) {
	entry, ok := p.entries[id]
	return entry, ok
}

func (p Pendings) Size() int {
	return len(p.entries)
}

// Drain returns every identifier and entry together with the
// empty table, used when the connection is torn down and all
// pending work must be aborted.
func (p Pendings) Drain() ([]UID, []PendingEntry, Pendings) {
	ids := make([]UID, 0, len(p.entries))
	entries := make([]PendingEntry, 0, len(p.entries))
	for id, entry := range p.entries {
		ids = append(ids, id)
		entries = append(entries, entry)
	}
	return ids, entries, NewPendings()
}
