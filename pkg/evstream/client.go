package evstream

import (
	"sync"

	"github.com/vramosp/go-evstream/internal"
)

// Client is the user facing handle over the driver runtime.
// Operations are asynchronous, every call registers a callback
// that eventually receives exactly one terminal outcome, a value
// or an error, unless the client is shut down first.
type Client struct {
	configuration *Configuration
	runtime       *internal.Runtime

	// Allocates the correlation identifiers handed out as
	// subscription handles before the control loop picks the
	// request up.
	mutex sync.Mutex
	gen   internal.Generator
}

// Subscription handle returned to the user, valid from the
// moment the subscribe call returns.
type Subscription struct {
	ID     internal.UID
	Stream string
}

// Options for the subscribe calls. EventAppeared receives one
// outcome per pushed event, Dropped exactly one outcome when the
// subscription ends.
type SubscriptionOptions struct {
	ResolveLinks  bool
	BufferSize    int32
	EventAppeared Callback
	Dropped       Callback
}

// SubmitOperation runs a raw operation program. The callback
// receives the terminal outcome, onValue every intermediate
// value the program emits and may be nil.
func (c *Client) SubmitOperation(program internal.Program, callback, onValue Callback) error {
	return c.runtime.Submit(internal.SubmitOperation{Operation: internal.Operation{
		Program:  program,
		Callback: callback,
		OnValue:  onValue,
	}})
}

// AppendToStream appends events at the given expected version.
// On success the callback value is a WriteResult.
func (c *Client) AppendToStream(stream string, expectedVersion int64, events []ProposedEvent, callback Callback) error {
	return c.SubmitOperation(AppendProgram(stream, expectedVersion, events), callback, nil)
}

// ReadStreamForward reads one batch of events. On success the
// callback value is a ReadResult.
func (c *Client) ReadStreamForward(stream string, from int64, count int32, callback Callback) error {
	return c.SubmitOperation(ReadBatchProgram(stream, from, count), callback, nil)
}

// ReadStreamToEnd walks the stream batch by batch until the end.
// onEvent receives every event, the callback the final
// ReadResult once the end was reached.
func (c *Client) ReadStreamToEnd(stream string, from int64, batch int32, onEvent, callback Callback) error {
	return c.SubmitOperation(ReadToEndProgram(stream, from, batch), callback, onEvent)
}

// Ping round-trips a liveness probe through the server.
func (c *Client) Ping(callback Callback) error {
	return c.SubmitOperation(PingProgram(), callback, nil)
}

// SubscribeToStream registers for events pushed on the stream.
// The handle can be passed to Unsubscribe at any time.
func (c *Client) SubscribeToStream(stream string, options SubscriptionOptions) (*Subscription, error) {
	id := c.nextID()
	err := c.runtime.Submit(internal.Subscribe{Sub: internal.Subscription{
		Correlation:   id,
		Stream:        stream,
		Kind:          internal.Plain,
		ResolveLinks:  options.ResolveLinks,
		EventAppeared: options.EventAppeared,
		Dropped:       options.Dropped,
	}})
	if err != nil {
		return nil, err
	}
	return &Subscription{ID: id, Stream: stream}, nil
}

// ConnectPersistentSubscription joins a named durable group on
// the stream.
func (c *Client) ConnectPersistentSubscription(group, stream string, options SubscriptionOptions) (*Subscription, error) {
	id := c.nextID()
	err := c.runtime.Submit(internal.Subscribe{Sub: internal.Subscription{
		Correlation:   id,
		Stream:        stream,
		Kind:          internal.Durable,
		Group:         group,
		BufferSize:    options.BufferSize,
		EventAppeared: options.EventAppeared,
		Dropped:       options.Dropped,
	}})
	if err != nil {
		return nil, err
	}
	return &Subscription{ID: id, Stream: stream}, nil
}

// CatchUpSubscribe reads the stream to its end, feeding every
// stored event to EventAppeared, and once caught up registers a
// live subscription under the returned handle.
func (c *Client) CatchUpSubscribe(stream string, from int64, batch int32, options SubscriptionOptions) (*Subscription, error) {
	id := c.nextID()
	handle := &Subscription{ID: id, Stream: stream}

	program := ReadToEndProgram(stream, from, batch)
	err := c.SubmitOperation(program, func(outcome Outcome) {
		if outcome.Err != nil {
			if options.Dropped != nil {
				options.Dropped(outcome)
			}
			return
		}
		err := c.runtime.Submit(internal.Subscribe{Sub: internal.Subscription{
			Correlation:   id,
			Stream:        stream,
			Kind:          internal.Plain,
			ResolveLinks:  options.ResolveLinks,
			EventAppeared: options.EventAppeared,
			Dropped:       options.Dropped,
		}})
		if err != nil && options.Dropped != nil {
			options.Dropped(Outcome{Err: err})
		}
	}, options.EventAppeared)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Unsubscribe cancels the subscription behind the handle. The
// Dropped callback fires once the server acknowledges.
func (c *Client) Unsubscribe(sub *Subscription) error {
	return c.runtime.Submit(internal.Cancel{ID: sub.ID})
}

// Shutdown stops the driver, failing whatever is still pending
// with a connection closed error, and blocks until every task
// exited.
func (c *Client) Shutdown() {
	c.runtime.Shutdown()
}

func (c *Client) nextID() internal.UID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var id internal.UID
	id, c.gen = c.gen.Next()
	return id
}
