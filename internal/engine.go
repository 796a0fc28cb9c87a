package internal

// Transition is the observable effect of feeding one input into
// a state machine: packets to transmit, completions to deliver
// and the correlation identifiers that were resolved by the
// step. The next state is returned alongside, the receiver is
// never changed.
type Transition struct {
	Packets     []Packet
	Completions []Completion
	Resolved    []UID
}

func (t Transition) join(other Transition) Transition {
	return Transition{
		Packets:     append(t.Packets, other.Packets...),
		Completions: append(t.Completions, other.Completions...),
		Resolved:    append(t.Resolved, other.Resolved...),
	}
}

// Engine interprets operation programs and matches inbound
// responses back to the suspended program that asked for them.
// The engine is a value, every step returns the next engine.
type Engine struct {
	codec       Codec
	gen         Generator
	credentials *Credentials
	pending     Pendings
}

func NewEngine(c Codec, gen Generator, credentials *Credentials) Engine {
	return Engine{
		codec:       c,
		gen:         gen,
		credentials: credentials,
		pending:     NewPendings(),
	}
}

// Outstanding is the number of requests awaiting a response.
func (e Engine) Outstanding() int {
	return e.pending.Size()
}

// Submit starts interpreting the operation program.
func (e Engine) Submit(op Operation) (Transition, Engine) {
	return e.interpret(op, op.Program)
}

// Runs the program until it suspends on a request or reaches a
// terminal instruction. Requests allocate a fresh correlation
// identifier, record the pending entry and leave the packet on
// the transition for the writer.
func (e Engine) interpret(op Operation, p Program) (Transition, Engine) {
	var t Transition
	next := e
	current := p
	for {
		switch inst := current.(type) {
		case Done:
			t.Completions = append(t.Completions, Completion{
				Callback: op.Callback,
				Outcome:  Outcome{Value: inst.Value},
			})
			return t, next
		case Emit:
			if op.OnValue != nil {
				t.Completions = append(t.Completions, Completion{
					Callback: op.OnValue,
					Outcome:  Outcome{Value: inst.Value},
				})
			}
			current = inst.Next
		case FreshID:
			var id UID
			id, next.gen = next.gen.Next()
			current = inst.Cont(id)
		case Request:
			var id UID
			id, next.gen = next.gen.Next()
			payload, err := next.codec.Encode(inst.Message)
			if err != nil {
				t.Completions = append(t.Completions, Completion{
					Callback: op.Callback,
					Outcome:  Outcome{Err: err},
				})
				return t, next
			}
			next.pending = next.pending.Insert(id, PendingEntry{
				Expected:  inst.Expected,
				Decode:    inst.Decode,
				Resume:    inst.Cont,
				Operation: op,
			})
			t.Packets = append(t.Packets, Packet{
				Command:     inst.Command,
				Correlation: id,
				Payload:     payload,
				Auth:        next.credentials,
			})
			return t, next
		case Fail:
			t.Completions = append(t.Completions, Completion{
				Callback: op.Callback,
				Outcome:  Outcome{Err: inst.Err},
			})
			return t, next
		case Restart:
			current = op.Program
		default:
			return t, next
		}
	}
}

// Deliver matches an inbound packet against the correlation
// table. Unknown identifiers are not an error, the packet is
// simply reported as unmatched so the caller can try the next
// consumer or drop it. A matched entry is removed before
// anything else happens, so a duplicate response arriving later
// finds nothing to resolve.
func (e Engine) Deliver(p Packet) (Transition, Engine, bool) {
	entry, remaining, ok := e.pending.Remove(p.Correlation)
	if !ok {
		return Transition{}, e, false
	}
	next := e
	next.pending = remaining
	resolved := Transition{Resolved: []UID{p.Correlation}}

	if p.Command != entry.Expected {
		return resolved.join(next.mismatched(entry, p)), next, true
	}

	decoded, err := entry.Decode(next.codec, p.Payload)
	if err != nil {
		resolved.Completions = append(resolved.Completions, Completion{
			Callback: entry.Operation.Callback,
			Outcome:  Outcome{Err: &DecodeError{Command: p.Command, Cause: err}},
		})
		return resolved, next, true
	}

	t, next := next.interpret(entry.Operation, entry.Resume(decoded))
	return resolved.join(t), next, true
}

// A response with the wrong command either carries a failure the
// server decided, delivered as a typed server failure, or is a
// protocol violation.
func (e Engine) mismatched(entry PendingEntry, p Packet) Transition {
	var t Transition
	switch p.Command {
	case CommandBadRequest, CommandNotAuthenticated, CommandServerError:
		var body ServerErrorBody
		reason := ""
		if err := e.codec.Decode(p.Payload, &body); err == nil {
			reason = body.Message
		}
		t.Completions = append(t.Completions, Completion{
			Callback: entry.Operation.Callback,
			Outcome:  Outcome{Err: &ServerFailure{Command: p.Command, Reason: reason}},
		})
	default:
		t.Completions = append(t.Completions, Completion{
			Callback: entry.Operation.Callback,
			Outcome:  Outcome{Err: &UnexpectedResponseError{Expected: entry.Expected, Actual: p.Command}},
		})
	}
	return t
}

// Abort resolves every outstanding request with the given
// connection failure, leaving the table empty. Used during
// teardown so no operation leaks past the connection death.
func (e Engine) Abort(cause error) (Transition, Engine) {
	ids, entries, empty := e.pending.Drain()
	next := e
	next.pending = empty

	t := Transition{Resolved: ids}
	for _, entry := range entries {
		t.Completions = append(t.Completions, Completion{
			Callback: entry.Operation.Callback,
			Outcome:  Outcome{Err: &ConnectionError{Cause: cause}},
		})
	}
	return t, next
}
