package internal

import (
	"github.com/hashicorp/go-msgpack/codec"
)

// Codec encodes and decodes the payload bodies carried by
// packets. The driver never inspects payload bytes itself, it
// hands them to the codec together with the type expected for
// the packet command.
type Codec interface {
	Encode(message interface{}) ([]byte, error)
	Decode(data []byte, into interface{}) error
}

// The default codec, framing payload bodies with MsgPack.
type MsgpackCodec struct {
	handle *codec.MsgpackHandle
}

func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{handle: &codec.MsgpackHandle{}}
}

// Implements the Codec interface.
func (m *MsgpackCodec) Encode(message interface{}) ([]byte, error) {
	var data []byte
	if err := codec.NewEncoderBytes(&data, m.handle).Encode(message); err != nil {
		return nil, err
	}
	return data, nil
}

// Implements the Codec interface.
func (m *MsgpackCodec) Decode(data []byte, into interface{}) error {
	return codec.NewDecoderBytes(data, m.handle).Decode(into)
}

// Outcome of an operation as decided by the server. Anything
// other than ResultSuccess surfaces as a ServerFailure value on
// the waiting callback.
type Result int32

const (
	ResultSuccess Result = iota

	// The stream is at a different version than the one the
	// append was conditioned on.
	ResultWrongExpectedVersion

	// The stream was hard deleted.
	ResultStreamDeleted

	ResultAccessDenied

	// The stream does not exist.
	ResultNoStream

	// The server could not take the request right now, the
	// operation may be retried from its beginning.
	ResultTryAgain
)

// An event proposed for appending, identified by the client.
type ProposedEvent struct {
	ID       UID
	Type     string
	Data     []byte
	Metadata []byte
}

// An event as persisted by the server.
type RecordedEvent struct {
	Stream   string
	ID       UID
	Number   int64
	Type     string
	Data     []byte
	Metadata []byte
}

type AppendEvents struct {
	Stream          string
	ExpectedVersion int64
	Events          []ProposedEvent
}

type AppendEventsCompleted struct {
	Result              Result
	NextExpectedVersion int64
	Reason              string
}

type ReadStreamEvents struct {
	Stream       string
	From         int64
	Count        int32
	ResolveLinks bool
}

type ReadStreamEventsCompleted struct {
	Result          Result
	Events          []RecordedEvent
	NextEventNumber int64
	EndOfStream     bool
	Reason          string
}

type SubscribeToStream struct {
	Stream       string
	ResolveLinks bool
}

type SubscriptionConfirmed struct {
	LastCommitPosition int64
	LastEventNumber    int64
}

type StreamEventAppeared struct {
	Event RecordedEvent
}

type Unsubscribe struct {
}

type SubscriptionDropped struct {
	Reason string
}

type ConnectPersistentSubscription struct {
	Group      string
	Stream     string
	BufferSize int32
}

type PersistentSubscriptionConfirmed struct {
	LastCommitPosition int64
	LastEventNumber    int64
}

type Ping struct {
}

type Pong struct {
}

// Body of the BadRequest, NotAuthenticated and ServerError
// failure packets.
type ServerErrorBody struct {
	Message string
}
