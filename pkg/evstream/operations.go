package evstream

import (
	"github.com/vramosp/go-evstream/internal"
)

// Result of a successful append.
type WriteResult struct {
	NextExpectedVersion int64
}

// Result of a read, one batch or the summary of a walk to the
// end of the stream.
type ReadResult struct {
	Events          []RecordedEvent
	NextEventNumber int64
	EndOfStream     bool
}

// Unbounded retry: a server asking to try again restarts the
// program from its first instruction.
const unboundedAttempts = -1

// AppendProgram describes a single append round trip. A try
// again answer from the server restarts the program, every other
// failing result terminates it with a typed failure.
func AppendProgram(stream string, expectedVersion int64, events []ProposedEvent) internal.Program {
	return appendAttempt(stream, expectedVersion, events, unboundedAttempts)
}

// AppendProgramWithAttempts is AppendProgram with a bounded
// retry budget: after attempts try again answers the operation
// fails instead of restarting.
func AppendProgramWithAttempts(stream string, expectedVersion int64, events []ProposedEvent, attempts int) internal.Program {
	return appendAttempt(stream, expectedVersion, events, attempts)
}

func appendAttempt(stream string, expectedVersion int64, events []ProposedEvent, remaining int) internal.Program {
	return internal.Request{
		Command:  internal.CommandAppendEvents,
		Expected: internal.CommandAppendEventsCompleted,
		Message: internal.AppendEvents{
			Stream:          stream,
			ExpectedVersion: expectedVersion,
			Events:          events,
		},
		Decode: func(c Codec, payload []byte) (interface{}, error) {
			var body internal.AppendEventsCompleted
			if err := c.Decode(payload, &body); err != nil {
				return nil, err
			}
			return &body, nil
		},
		Cont: func(decoded interface{}) internal.Program {
			body := decoded.(*internal.AppendEventsCompleted)
			switch body.Result {
			case internal.ResultSuccess:
				return internal.Done{Value: WriteResult{NextExpectedVersion: body.NextExpectedVersion}}
			case internal.ResultTryAgain:
				return retryOrFail(remaining, func(left int) internal.Program {
					return appendAttempt(stream, expectedVersion, events, left)
				})
			default:
				return internal.Fail{Err: &internal.OperationFailure{Result: body.Result, Reason: body.Reason}}
			}
		},
	}
}

// ReadBatchProgram describes a single batched read round trip.
func ReadBatchProgram(stream string, from int64, count int32) internal.Program {
	return internal.Request{
		Command:  internal.CommandReadStreamEvents,
		Expected: internal.CommandReadStreamEventsCompleted,
		Message: internal.ReadStreamEvents{
			Stream: stream,
			From:   from,
			Count:  count,
		},
		Decode: decodeReadCompleted,
		Cont: func(decoded interface{}) internal.Program {
			body := decoded.(*internal.ReadStreamEventsCompleted)
			switch body.Result {
			case internal.ResultSuccess, internal.ResultNoStream:
				return internal.Done{Value: ReadResult{
					Events:          body.Events,
					NextEventNumber: body.NextEventNumber,
					EndOfStream:     body.EndOfStream,
				}}
			case internal.ResultTryAgain:
				return internal.Restart{}
			default:
				return internal.Fail{Err: &internal.OperationFailure{Result: body.Result, Reason: body.Reason}}
			}
		},
	}
}

// ReadToEndProgram walks the stream batch by batch, emitting
// every event, until the server reports the end of the stream.
// A missing stream terminates immediately with an empty result,
// so catching up on a stream not written yet is not an error.
func ReadToEndProgram(stream string, from int64, batch int32) internal.Program {
	return internal.Request{
		Command:  internal.CommandReadStreamEvents,
		Expected: internal.CommandReadStreamEventsCompleted,
		Message: internal.ReadStreamEvents{
			Stream: stream,
			From:   from,
			Count:  batch,
		},
		Decode: decodeReadCompleted,
		Cont: func(decoded interface{}) internal.Program {
			body := decoded.(*internal.ReadStreamEventsCompleted)
			switch body.Result {
			case internal.ResultNoStream:
				return internal.Done{Value: ReadResult{EndOfStream: true, NextEventNumber: from}}
			case internal.ResultSuccess:
				var tail internal.Program
				if body.EndOfStream {
					tail = internal.Done{Value: ReadResult{
						NextEventNumber: body.NextEventNumber,
						EndOfStream:     true,
					}}
				} else {
					tail = ReadToEndProgram(stream, body.NextEventNumber, batch)
				}
				for i := len(body.Events) - 1; i >= 0; i-- {
					tail = internal.Emit{Value: body.Events[i], Next: tail}
				}
				return tail
			case internal.ResultTryAgain:
				return internal.Restart{}
			default:
				return internal.Fail{Err: &internal.OperationFailure{Result: body.Result, Reason: body.Reason}}
			}
		},
	}
}

// PingProgram round-trips a liveness probe.
func PingProgram() internal.Program {
	return internal.Request{
		Command:  internal.CommandPing,
		Expected: internal.CommandPong,
		Message:  internal.Ping{},
		Decode: func(c Codec, payload []byte) (interface{}, error) {
			var body internal.Pong
			if err := c.Decode(payload, &body); err != nil {
				return nil, err
			}
			return &body, nil
		},
		Cont: func(interface{}) internal.Program {
			return internal.Done{Value: internal.Pong{}}
		},
	}
}

func decodeReadCompleted(c Codec, payload []byte) (interface{}, error) {
	var body internal.ReadStreamEventsCompleted
	if err := c.Decode(payload, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// Decides between restarting and giving up when the server asked
// to try again. A negative budget restarts forever, a spent
// budget terminates with the try again failure.
func retryOrFail(remaining int, again func(left int) internal.Program) internal.Program {
	if remaining < 0 {
		return internal.Restart{}
	}
	if remaining == 0 {
		return internal.Fail{Err: &internal.OperationFailure{
			Result: internal.ResultTryAgain,
			Reason: "retry budget exhausted",
		}}
	}
	return again(remaining - 1)
}
