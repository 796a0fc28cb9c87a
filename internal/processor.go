package internal

// Commands a user can submit to the driver. The processor
// inspects the kind and forwards to the right sub-machine.
type Command interface {
	isCommand()
}

// Runs an operation program.
type SubmitOperation struct {
	Operation Operation
}

func (SubmitOperation) isCommand() {}
func (Subscribe) isCommand()       {}
func (Cancel) isCommand()          {}

// Processor routes user commands and inbound packets to either
// the subscription driver or the operation engine. It is the
// only component stepping both sub-machines, so there is a
// single place deciding their relative order. The processor is a
// value like the machines it holds.
type Processor struct {
	subscriptions SubscriptionDriver
	engine        Engine
}

func NewProcessor(c Codec, gen Generator, credentials *Credentials) Processor {
	return Processor{
		subscriptions: NewSubscriptionDriver(c, credentials),
		engine:        NewEngine(c, gen, credentials),
	}
}

// Outstanding is the number of in-flight requests plus tracked
// subscriptions.
func (p Processor) Outstanding() int {
	return p.engine.Outstanding() + p.subscriptions.Tracked()
}

// Submit forwards a user command to the sub-machine owning its
// kind.
func (p Processor) Submit(cmd Command) (Transition, Processor) {
	next := p
	switch c := cmd.(type) {
	case SubmitOperation:
		var t Transition
		t, next.engine = next.engine.Submit(c.Operation)
		return t, next
	case Subscribe, Cancel:
		var t Transition
		t, next.subscriptions = next.subscriptions.Submit(c.(SubscriptionCommand))
		return t, next
	default:
		return Transition{}, p
	}
}

// Deliver offers an inbound packet first to the subscription
// driver, then to the engine. A packet neither claims produces
// no transition at all, unmatched packets are harmless.
func (p Processor) Deliver(pkt Packet) (Transition, Processor, bool) {
	next := p
	t, subs, ok := next.subscriptions.Deliver(pkt)
	if ok {
		next.subscriptions = subs
		return t, next, true
	}

	t, engine, ok := next.engine.Deliver(pkt)
	if !ok {
		return Transition{}, p, false
	}
	next.engine = engine
	return t, next, true
}

// Abort tears both sub-machines down, each pending operation and
// subscription receiving a connection failure exactly once.
func (p Processor) Abort(cause error) (Transition, Processor) {
	next := p
	operations, engine := next.engine.Abort(cause)
	next.engine = engine
	subscriptions, subs := next.subscriptions.Abort(cause)
	next.subscriptions = subs
	return operations.join(subscriptions), next
}
