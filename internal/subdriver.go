package internal

// Commands a user can issue against the subscription machinery.
type SubscriptionCommand interface {
	isSubscriptionCommand()
}

// Asks for a new subscription. The correlation identifier was
// allocated by the caller so a handle could be returned before
// the control loop picked the command up.
type Subscribe struct {
	Sub Subscription
}

// Cancels a subscription by its correlation identifier.
type Cancel struct {
	ID UID
}

func (Subscribe) isSubscriptionCommand() {}
func (Cancel) isSubscriptionCommand()    {}

// SubscriptionDriver bridges raw packets to the subscription
// state machine: user intents become outbound packets, inbound
// packets become state transitions and event deliveries. The
// driver is a value like the machine it wraps.
type SubscriptionDriver struct {
	codec       Codec
	credentials *Credentials
	state       SubscriptionState
}

func NewSubscriptionDriver(c Codec, credentials *Credentials) SubscriptionDriver {
	return SubscriptionDriver{
		codec:       c,
		credentials: credentials,
		state:       NewSubscriptionState(),
	}
}

// Tracked is the number of pending plus running subscriptions.
func (d SubscriptionDriver) Tracked() int {
	return d.state.Size()
}

// Submit turns a user intent into the packet asking the server
// for it, tracking the registration as pending until confirmed.
func (d SubscriptionDriver) Submit(cmd SubscriptionCommand) (Transition, SubscriptionDriver) {
	switch c := cmd.(type) {
	case Subscribe:
		return d.subscribe(c.Sub)
	case Cancel:
		return d.cancel(c.ID)
	default:
		return Transition{}, d
	}
}

func (d SubscriptionDriver) subscribe(sub Subscription) (Transition, SubscriptionDriver) {
	var message interface{}
	var command byte
	if sub.Kind == Durable {
		command = CommandConnectPersistentSubscription
		message = ConnectPersistentSubscription{
			Group:      sub.Group,
			Stream:     sub.Stream,
			BufferSize: sub.BufferSize,
		}
	} else {
		command = CommandSubscribeToStream
		message = SubscribeToStream{
			Stream:       sub.Stream,
			ResolveLinks: sub.ResolveLinks,
		}
	}

	payload, err := d.codec.Encode(message)
	if err != nil {
		t := Transition{Completions: []Completion{{
			Callback: sub.Dropped,
			Outcome:  Outcome{Err: err},
		}}}
		return t, d
	}

	next := d
	next.state = Apply(next.state, ActionRegister{Sub: sub})
	t := Transition{Packets: []Packet{{
		Command:     command,
		Correlation: sub.Correlation,
		Payload:     payload,
		Auth:        d.credentials,
	}}}
	return t, next
}

// A cancel sends the unsubscribe request reusing the
// subscription correlation identifier. The entry stays tracked
// until the server answers with a drop for it.
func (d SubscriptionDriver) cancel(id UID) (Transition, SubscriptionDriver) {
	if _, pendingHit := d.state.LookupPending(id); !pendingHit {
		if _, runningHit := d.state.LookupRunning(id); !runningHit {
			return Transition{}, d
		}
	}

	payload, err := d.codec.Encode(Unsubscribe{})
	if err != nil {
		return Transition{}, d
	}
	t := Transition{Packets: []Packet{{
		Command:     CommandUnsubscribe,
		Correlation: id,
		Payload:     payload,
		Auth:        d.credentials,
	}}}
	return t, d
}

// Deliver offers an inbound packet to the driver. The returned
// flag reports whether the packet was subscription-related at
// all, when false the caller tries the next consumer. A
// confirmation transitions pending to running silently, an event
// push resolves to a delivery on the owning subscription, a drop
// terminates the entry.
func (d SubscriptionDriver) Deliver(p Packet) (Transition, SubscriptionDriver, bool) {
	switch p.Command {
	case CommandSubscriptionConfirmed, CommandPersistentSubscriptionConfirmed:
		// Confirmations produce no user visible result.
		return Transition{}, d.applyConfirmed(p), true
	case CommandStreamEventAppeared:
		return d.eventAppeared(p), d, true
	case CommandSubscriptionDropped:
		return d.dropped(p)
	default:
		return Transition{}, d, false
	}
}

func (d SubscriptionDriver) applyConfirmed(p Packet) SubscriptionDriver {
	var confirmation Confirmation
	if p.Command == CommandPersistentSubscriptionConfirmed {
		var body PersistentSubscriptionConfirmed
		if err := d.codec.Decode(p.Payload, &body); err != nil {
			return d
		}
		confirmation = Confirmation{
			LastCommitPosition: body.LastCommitPosition,
			LastEventNumber:    body.LastEventNumber,
		}
	} else {
		var body SubscriptionConfirmed
		if err := d.codec.Decode(p.Payload, &body); err != nil {
			return d
		}
		confirmation = Confirmation{
			LastCommitPosition: body.LastCommitPosition,
			LastEventNumber:    body.LastEventNumber,
		}
	}

	next := d
	next.state = Apply(next.state, ActionConfirm{ID: p.Correlation, Confirmation: confirmation})
	return next
}

// An event push is routed through the running mapping only, a
// push for an unconfirmed or unknown subscription is dropped.
func (d SubscriptionDriver) eventAppeared(p Packet) Transition {
	sub, ok := d.state.LookupRunning(p.Correlation)
	if !ok {
		return Transition{}
	}

	var body StreamEventAppeared
	if err := d.codec.Decode(p.Payload, &body); err != nil {
		return Transition{Completions: []Completion{{
			Callback: sub.EventAppeared,
			Outcome:  Outcome{Err: &DecodeError{Command: p.Command, Cause: err}},
		}}}
	}
	return Transition{Completions: []Completion{{
		Callback: sub.EventAppeared,
		Outcome:  Outcome{Value: body.Event},
	}}}
}

func (d SubscriptionDriver) dropped(p Packet) (Transition, SubscriptionDriver, bool) {
	sub, running := d.state.LookupRunning(p.Correlation)
	var terminated Subscription
	if running {
		terminated = sub.Subscription
	} else {
		pending, ok := d.state.LookupPending(p.Correlation)
		if !ok {
			// Unknown drop, already terminated or never ours.
			return Transition{}, d, true
		}
		terminated = pending
	}

	var body SubscriptionDropped
	reason := ""
	if err := d.codec.Decode(p.Payload, &body); err == nil {
		reason = body.Reason
	}

	next := d
	next.state = Apply(next.state, ActionDrop{ID: p.Correlation})
	t := Transition{
		Completions: []Completion{{
			Callback: terminated.Dropped,
			Outcome:  Outcome{Value: SubscriptionDropped{Reason: reason}},
		}},
		Resolved: []UID{p.Correlation},
	}
	return t, next, true
}

// Abort terminates every pending and running subscription with
// the given connection failure, used during teardown.
func (d SubscriptionDriver) Abort(cause error) (Transition, SubscriptionDriver) {
	subs, empty := d.state.Drain()
	next := d
	next.state = empty

	var t Transition
	for _, sub := range subs {
		t.Completions = append(t.Completions, Completion{
			Callback: sub.Dropped,
			Outcome:  Outcome{Err: &ConnectionError{Cause: cause}},
		})
		t.Resolved = append(t.Resolved, sub.Correlation)
	}
	return t, next
}
