package internal

import (
	"bytes"
	"errors"
	"testing"
)

// Program issuing one append request, completing with the next
// expected version on success and restarting when the server
// asks to try again.
func appendProgram(stream string) Program {
	return Request{
		Command:  CommandAppendEvents,
		Expected: CommandAppendEventsCompleted,
		Message:  AppendEvents{Stream: stream, ExpectedVersion: 4},
		Decode: func(c Codec, payload []byte) (interface{}, error) {
			var body AppendEventsCompleted
			if err := c.Decode(payload, &body); err != nil {
				return nil, err
			}
			return &body, nil
		},
		Cont: func(decoded interface{}) Program {
			body := decoded.(*AppendEventsCompleted)
			if body.Result == ResultTryAgain {
				return Restart{}
			}
			if body.Result != ResultSuccess {
				return Fail{Err: &OperationFailure{Result: body.Result, Reason: body.Reason}}
			}
			return Done{Value: body.NextExpectedVersion}
		},
	}
}

type recorded struct {
	outcomes []Outcome
}

func (r *recorded) callback() Callback {
	return func(o Outcome) {
		r.outcomes = append(r.outcomes, o)
	}
}

func respond(t *testing.T, c Codec, command byte, correlation UID, body interface{}) Packet {
	t.Helper()
	payload, err := c.Encode(body)
	if err != nil {
		t.Fatalf("failed encoding response body. %v", err)
	}
	return Packet{Command: command, Correlation: correlation, Payload: payload}
}

func Test_AppendResolvesWithServerValue(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	transition, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	if len(transition.Packets) != 1 {
		t.Fatalf("expected one request packet, got %d", len(transition.Packets))
	}
	request := transition.Packets[0]
	if request.Command != CommandAppendEvents {
		t.Fatalf("wrong request command %#x", request.Command)
	}

	response := respond(t, c, CommandAppendEventsCompleted, request.Correlation,
		AppendEventsCompleted{Result: ResultSuccess, NextExpectedVersion: 5})
	transition, engine, ok := engine.Deliver(response)
	if !ok {
		t.Fatal("response did not match the pending request")
	}
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected exactly one completion, got %d", len(rec.outcomes))
	}
	if rec.outcomes[0].Err != nil {
		t.Fatalf("expected success, got %v", rec.outcomes[0].Err)
	}
	if rec.outcomes[0].Value.(int64) != 5 {
		t.Errorf("expected next expected version 5, got %v", rec.outcomes[0].Value)
	}
	if engine.Outstanding() != 0 {
		t.Errorf("request still outstanding after resolution")
	}
}

func Test_WrongResponseCommandFailsTheOneRequest(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	transition, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	request := transition.Packets[0]

	response := respond(t, c, CommandReadStreamEventsCompleted, request.Correlation, ReadStreamEventsCompleted{})
	transition, _, ok := engine.Deliver(response)
	if !ok {
		t.Fatal("response did not match the pending request")
	}
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	if len(rec.outcomes) != 1 {
		t.Fatalf("expected exactly one completion, got %d", len(rec.outcomes))
	}
	var unexpected *UnexpectedResponseError
	if !errors.As(rec.outcomes[0].Err, &unexpected) {
		t.Fatalf("expected an unexpected response failure, got %v", rec.outcomes[0].Err)
	}
	if unexpected.Expected != CommandAppendEventsCompleted || unexpected.Actual != CommandReadStreamEventsCompleted {
		t.Errorf("failure carries wrong commands: %#x %#x", unexpected.Expected, unexpected.Actual)
	}
}

func Test_ServerErrorBecomesTypedFailure(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	transition, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	request := transition.Packets[0]

	response := respond(t, c, CommandServerError, request.Correlation, ServerErrorBody{Message: "out of space"})
	transition, _, _ = engine.Deliver(response)
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	var failure *ServerFailure
	if !errors.As(rec.outcomes[0].Err, &failure) {
		t.Fatalf("expected a server failure, got %v", rec.outcomes[0].Err)
	}
	if failure.Reason != "out of space" {
		t.Errorf("reason lost: %q", failure.Reason)
	}
}

func Test_MalformedPayloadFailsOnlyThatRequest(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	other := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	transition, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	request := transition.Packets[0]
	_, engine = engine.Submit(Operation{Program: appendProgram("payments"), Callback: other.callback()})

	malformed := Packet{
		Command:     CommandAppendEventsCompleted,
		Correlation: request.Correlation,
		Payload:     []byte{0xC1}, // reserved msgpack byte, never valid
	}
	transition, engine, _ = engine.Deliver(malformed)
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	var decode *DecodeError
	if !errors.As(rec.outcomes[0].Err, &decode) {
		t.Fatalf("expected a decode failure, got %v", rec.outcomes[0].Err)
	}
	if len(other.outcomes) != 0 {
		t.Error("an unrelated pending request was completed")
	}
	if engine.Outstanding() != 1 {
		t.Errorf("expected the unrelated request to stay pending, outstanding %d", engine.Outstanding())
	}
}

func Test_DuplicateResponseIsIgnored(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	transition, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	request := transition.Packets[0]

	response := respond(t, c, CommandAppendEventsCompleted, request.Correlation,
		AppendEventsCompleted{Result: ResultSuccess, NextExpectedVersion: 5})
	transition, engine, ok := engine.Deliver(response)
	if !ok {
		t.Fatal("first delivery should match")
	}
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	transition, _, ok = engine.Deliver(response)
	if ok {
		t.Fatal("duplicate response matched a second time")
	}
	if len(transition.Completions) != 0 || len(transition.Packets) != 0 {
		t.Error("duplicate produced effects")
	}
	if len(rec.outcomes) != 1 {
		t.Errorf("completion delivered %d times", len(rec.outcomes))
	}
}

func Test_UnmatchedPacketIsHarmless(t *testing.T) {
	c := NewMsgpackCodec()
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	stray, _ := NewSeededGenerator(77, 77).Next()
	transition, after, ok := engine.Deliver(Packet{Command: CommandPong, Correlation: stray})
	if ok {
		t.Fatal("an unknown correlation id matched")
	}
	if len(transition.Completions) != 0 || len(transition.Packets) != 0 {
		t.Error("unmatched packet produced effects")
	}
	if after.Outstanding() != engine.Outstanding() {
		t.Error("unmatched packet changed the table")
	}
}

func Test_TryAgainRestartsFromTheFirstInstruction(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	first, engine := engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	request := first.Packets[0]

	response := respond(t, c, CommandAppendEventsCompleted, request.Correlation,
		AppendEventsCompleted{Result: ResultTryAgain})
	second, engine, _ := engine.Deliver(response)

	if len(second.Packets) != 1 {
		t.Fatalf("restart should issue the request again, got %d packets", len(second.Packets))
	}
	retry := second.Packets[0]
	if retry.Command != request.Command {
		t.Errorf("retry changed the command: %#x != %#x", retry.Command, request.Command)
	}
	if !bytes.Equal(retry.Payload, request.Payload) {
		t.Error("retry changed the request payload")
	}
	if retry.Correlation == request.Correlation {
		t.Error("retry reused the resolved correlation id")
	}
	if len(rec.outcomes) != 0 {
		t.Error("a retry is not a user visible completion")
	}
	if engine.Outstanding() != 1 {
		t.Errorf("restarted request not pending, outstanding %d", engine.Outstanding())
	}
}

func Test_AbortFailsEveryPendingRequestOnce(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	pending := 4
	for i := 0; i < pending; i++ {
		_, engine = engine.Submit(Operation{Program: appendProgram("orders"), Callback: rec.callback()})
	}

	transition, engine := engine.Abort(errors.New("wire cut"))
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	if len(rec.outcomes) != pending {
		t.Fatalf("expected %d terminal completions, got %d", pending, len(rec.outcomes))
	}
	for _, outcome := range rec.outcomes {
		var failure *ConnectionError
		if !errors.As(outcome.Err, &failure) {
			t.Errorf("expected a connection failure, got %v", outcome.Err)
		}
	}
	if engine.Outstanding() != 0 {
		t.Errorf("correlation table not empty after abort: %d", engine.Outstanding())
	}
}

func Test_EmittedValuesReachTheValueSink(t *testing.T) {
	c := NewMsgpackCodec()
	terminal := &recorded{}
	values := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	program := Emit{Value: 1, Next: Emit{Value: 2, Next: Done{Value: "end"}}}
	transition, _ := engine.Submit(Operation{
		Program:  program,
		Callback: terminal.callback(),
		OnValue:  values.callback(),
	})
	for _, completion := range transition.Completions {
		completion.Callback(completion.Outcome)
	}

	if len(values.outcomes) != 2 {
		t.Fatalf("expected 2 emitted values, got %d", len(values.outcomes))
	}
	if len(terminal.outcomes) != 1 || terminal.outcomes[0].Value != "end" {
		t.Errorf("terminal outcome lost: %#v", terminal.outcomes)
	}
}

func Test_FreshIDAdvancesTheGenerator(t *testing.T) {
	c := NewMsgpackCodec()
	rec := &recorded{}
	engine := NewEngine(c, NewSeededGenerator(0, 0), nil)

	var firstSeen, secondSeen UID
	program := FreshID{Cont: func(id UID) Program {
		firstSeen = id
		return FreshID{Cont: func(id UID) Program {
			secondSeen = id
			return Done{Value: nil}
		}}
	}}
	_, _ = engine.Submit(Operation{Program: program, Callback: rec.callback()})

	if firstSeen == "" || secondSeen == "" {
		t.Fatal("identifier requests not answered")
	}
	if firstSeen == secondSeen {
		t.Error("generator did not advance between requests")
	}
}
