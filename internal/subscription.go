package internal

// Which flavor of subscription a registration asked for. Durable
// subscriptions join a named group on the server and survive the
// client, plain subscriptions live with the connection.
type SubscriptionKind uint8

const (
	Plain SubscriptionKind = iota
	Durable
)

// Subscription is a standing registration asking the server to
// push events of a stream until cancelled. Callbacks run on the
// callback executor only.
type Subscription struct {
	Correlation  UID
	Stream       string
	Kind         SubscriptionKind
	Group        string
	BufferSize   int32
	ResolveLinks bool

	// Invoked once per pushed event.
	EventAppeared Callback

	// Invoked exactly once when the subscription terminates,
	// by unsubscribe, by the server dropping it or by the
	// connection dying.
	Dropped Callback
}

// Confirmation metadata decoded from the server acknowledgment.
type Confirmation struct {
	LastCommitPosition int64
	LastEventNumber    int64
}

// A subscription the server acknowledged, now routing pushed
// events.
type RunningSubscription struct {
	Subscription
	Confirmation
}

// Actions fed into the subscription state machine.
type SubscriptionAction interface {
	isSubscriptionAction()
}

// A subscription request was sent, track it until the server
// acknowledges. Covers both plain and durable registrations,
// told apart by the subscription kind.
type ActionRegister struct {
	Sub Subscription
}

// The server acknowledged the subscription with the given
// correlation identifier.
type ActionConfirm struct {
	ID           UID
	Confirmation Confirmation
}

// The subscription terminated, remove it wherever it is.
type ActionDrop struct {
	ID UID
}

func (ActionRegister) isSubscriptionAction() {}
func (ActionConfirm) isSubscriptionAction()  {}
func (ActionDrop) isSubscriptionAction()     {}

// SubscriptionState tracks pending and running subscriptions by
// correlation identifier. The state is a value, applying an
// action returns the next state and the same state and action
// sequence always produces the same final state. A confirmation
// or drop naming an unknown identifier is ignored rather than an
// error, tolerating out-of-order and duplicate server messages.
type SubscriptionState struct {
	pending map[UID]Subscription
	running map[UID]RunningSubscription
}

func NewSubscriptionState() SubscriptionState {
	return SubscriptionState{
		pending: make(map[UID]Subscription),
		running: make(map[UID]RunningSubscription),
	}
}

// Apply feeds one action into the machine and returns the next
// state.
func Apply(s SubscriptionState, action SubscriptionAction) SubscriptionState {
	switch act := action.(type) {
	case ActionRegister:
		return s.register(act.Sub)
	case ActionConfirm:
		return s.confirm(act.ID, act.Confirmation)
	case ActionDrop:
		return s.drop(act.ID)
	default:
		return s
	}
}

func (s SubscriptionState) register(sub Subscription) SubscriptionState {
	next := s.clone()
	next.pending[sub.Correlation] = sub
	return next
}

// Moves an entry from pending to running. Unknown identifiers
// are a no-op.
func (s SubscriptionState) confirm(id UID, confirmation Confirmation) SubscriptionState {
	sub, ok := s.pending[id]
	if !ok {
		return s
	}
	next := s.clone()
	delete(next.pending, id)
	next.running[id] = RunningSubscription{Subscription: sub, Confirmation: confirmation}
	return next
}

// Removes the entry from whichever mapping holds it. Unknown
// identifiers are a no-op.
func (s SubscriptionState) drop(id UID) SubscriptionState {
	_, pendingHit := s.pending[id]
	_, runningHit := s.running[id]
	if !pendingHit && !runningHit {
		return s
	}
	next := s.clone()
	delete(next.pending, id)
	delete(next.running, id)
	return next
}

// LookupRunning never mutates.
func (s SubscriptionState) LookupRunning(id UID) (RunningSubscription, bool) {
	sub, ok := s.running[id]
	return sub, ok
}

// LookupPending never mutates.
func (s SubscriptionState) LookupPending(id UID) (Subscription, bool) {
	sub, ok := s.pending[id]
	return sub, ok
}

func (s SubscriptionState) Size() int {
	return len(s.pending) + len(s.running)
}

// Drain returns every tracked subscription and the empty state,
// used during teardown.
func (s SubscriptionState) Drain() ([]Subscription, SubscriptionState) {
	subs := make([]Subscription, 0, s.Size())
	for _, sub := range s.pending {
		subs = append(subs, sub)
	}
	for _, sub := range s.running {
		subs = append(subs, sub.Subscription)
	}
	return subs, NewSubscriptionState()
}

func (s SubscriptionState) clone() SubscriptionState {
	next := SubscriptionState{
		pending: make(map[UID]Subscription, len(s.pending)),
		running: make(map[UID]RunningSubscription, len(s.running)),
	}
	for id, sub := range s.pending {
		next.pending[id] = sub
	}
	for id, sub := range s.running {
		next.running[id] = sub
	}
	return next
}
