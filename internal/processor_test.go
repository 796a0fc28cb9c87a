package internal

import (
	"errors"
	"testing"
)

func Test_CommandsReachTheRightSubMachine(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	proc := NewProcessor(c, NewSeededGenerator(0, 0), nil)

	transition, proc := proc.Submit(SubmitOperation{Operation: Operation{
		Program:  appendProgram("orders"),
		Callback: rec.callback(),
	}})
	if len(transition.Packets) != 1 || transition.Packets[0].Command != CommandAppendEvents {
		t.Fatalf("operation did not reach the engine: %#v", transition.Packets)
	}

	gen := NewSeededGenerator(3, 3)
	id, _ := gen.Next()
	transition, proc = proc.Submit(Subscribe{Sub: Subscription{Correlation: id, Stream: "orders"}})
	if len(transition.Packets) != 1 || transition.Packets[0].Command != CommandSubscribeToStream {
		t.Fatalf("subscription did not reach the driver: %#v", transition.Packets)
	}

	if proc.Outstanding() != 2 {
		t.Errorf("expected 2 tracked entries, got %d", proc.Outstanding())
	}
}

func Test_SubscriptionTrafficIsOfferedFirst(t *testing.T) {
	c := NewMsgpackCodec()
	events, drops := &recorded{}, &recorded{}
	proc := NewProcessor(c, NewSeededGenerator(0, 0), nil)

	gen := NewSeededGenerator(3, 3)
	id, _ := gen.Next()
	_, proc = proc.Submit(Subscribe{Sub: Subscription{
		Correlation:   id,
		Stream:        "orders",
		EventAppeared: events.callback(),
		Dropped:       drops.callback(),
	}})

	payload, _ := c.Encode(SubscriptionConfirmed{})
	_, proc, ok := proc.Deliver(Packet{Command: CommandSubscriptionConfirmed, Correlation: id, Payload: payload})
	if !ok {
		t.Fatal("confirmation not routed")
	}

	pushed, _ := c.Encode(StreamEventAppeared{Event: RecordedEvent{Number: 1}})
	transition, proc, ok := proc.Deliver(Packet{Command: CommandStreamEventAppeared, Correlation: id, Payload: pushed})
	if !ok {
		t.Fatal("event push not routed")
	}
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}
	if len(events.outcomes) != 1 {
		t.Errorf("event not delivered: %d", len(events.outcomes))
	}
}

func Test_OperationResponsesFallThroughToTheEngine(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	proc := NewProcessor(c, NewSeededGenerator(0, 0), nil)

	transition, proc := proc.Submit(SubmitOperation{Operation: Operation{
		Program:  appendProgram("orders"),
		Callback: rec.callback(),
	}})
	request := transition.Packets[0]

	response := respond(t, c, CommandAppendEventsCompleted, request.Correlation,
		AppendEventsCompleted{Result: ResultSuccess, NextExpectedVersion: 1})
	transition, _, ok := proc.Deliver(response)
	if !ok {
		t.Fatal("response not routed to the engine")
	}
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Err != nil {
		t.Errorf("operation not completed: %#v", rec.outcomes)
	}
}

func Test_UnmatchedPacketsProduceNothing(t *testing.T) {
	c := NewMsgpackCodec()
	proc := NewProcessor(c, NewSeededGenerator(0, 0), nil)

	stray, _ := NewSeededGenerator(8, 8).Next()
	transition, after, ok := proc.Deliver(Packet{Command: CommandPong, Correlation: stray})
	if ok {
		t.Fatal("stray packet was claimed")
	}
	if len(transition.Packets) != 0 || len(transition.Completions) != 0 {
		t.Error("stray packet produced effects")
	}
	if after.Outstanding() != 0 {
		t.Error("stray packet changed state")
	}
}

// Tearing a connection down must resolve exactly one terminal
// completion per pending operation and per tracked subscription,
// leaving both tables empty.
func Test_TeardownCompleteness(t *testing.T) {
	c := NewMsgpackCodec()
	operations := &recorded{}
	drops := &recorded{}
	proc := NewProcessor(c, NewSeededGenerator(0, 0), nil)

	pendingOperations := 4
	for i := 0; i < pendingOperations; i++ {
		_, proc = proc.Submit(SubmitOperation{Operation: Operation{
			Program:  appendProgram("orders"),
			Callback: operations.callback(),
		}})
	}

	subscriptions := 3
	gen := NewSeededGenerator(6, 0)
	var ids []UID
	for i := 0; i < subscriptions; i++ {
		var id UID
		id, gen = gen.Next()
		ids = append(ids, id)
		_, proc = proc.Submit(Subscribe{Sub: Subscription{
			Correlation: id,
			Stream:      "orders",
			Dropped:     drops.callback(),
		}})
	}
	// Confirm one so running entries are aborted too.
	payload, _ := c.Encode(SubscriptionConfirmed{})
	_, proc, _ = proc.Deliver(Packet{Command: CommandSubscriptionConfirmed, Correlation: ids[0], Payload: payload})

	transition, proc := proc.Abort(errors.New("wire cut"))
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	if got := len(operations.outcomes) + len(drops.outcomes); got != pendingOperations+subscriptions {
		t.Fatalf("expected %d terminal completions, got %d", pendingOperations+subscriptions, got)
	}
	for _, outcome := range append(operations.outcomes, drops.outcomes...) {
		var failure *ConnectionError
		if !errors.As(outcome.Err, &failure) {
			t.Errorf("expected a connection failure, got %v", outcome.Err)
		}
	}
	if proc.Outstanding() != 0 {
		t.Errorf("state not empty after teardown: %d", proc.Outstanding())
	}
}
