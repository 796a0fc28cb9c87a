package internal

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNoAddress = errors.New("configuration has no server address")
	ErrNoCodec   = errors.New("configuration has no codec")
)

// How the runtime behaves when a connection lifecycle ends with
// a failure. Zero retries means the driver stops on the first
// connection death.
type ReconnectPolicy struct {
	// How many times a fresh lifecycle is attempted after a
	// failure before giving up.
	MaxRetries int

	// How long to wait between attempts. The wait grows
	// linearly with the attempt number.
	Backoff time.Duration
}

// The configuration for the driver. Consumed read-only, the
// runtime never writes back into it.
type Configuration struct {
	// Server address the transport dials.
	Address string

	// Credentials attached to every outbound packet when set.
	Credentials *Credentials

	// Codec for payload bodies.
	Codec Codec

	// Logger to be used by the driver.
	Logger Logger

	// Timeout for establishing the connection.
	DialTimeout time.Duration

	// Policy applied when a lifecycle dies.
	Reconnect ReconnectPolicy

	// Capacity of the callback executor queue. Slow user
	// callbacks exert back-pressure on the control loop once
	// the queue is full, never on the socket tasks directly.
	CallbackQueueDepth int
}

// Creates a configuration ready to be used against the given
// address.
func DefaultConfiguration(address string) *Configuration {
	return &Configuration{
		Address:            address,
		Codec:              NewMsgpackCodec(),
		Logger:             NewDefaultLogger(),
		DialTimeout:        5 * time.Second,
		Reconnect:          ReconnectPolicy{MaxRetries: 3, Backoff: 500 * time.Millisecond},
		CallbackQueueDepth: 4096,
	}
}

// Verify if the given configuration is valid to be used,
// filling defaults where the zero value cannot work.
func ValidateConfiguration(c *Configuration) error {
	if c.Address == "" {
		return ErrNoAddress
	}
	if c.Codec == nil {
		return ErrNoCodec
	}
	if c.Logger == nil {
		c.Logger = NewDefaultLogger()
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.CallbackQueueDepth <= 0 {
		c.CallbackQueueDepth = 4096
	}
	return nil
}

// Invoker is responsible for handling goroutines, every task of
// the runtime is spawned and awaited through it.
type Invoker struct {
	group *sync.WaitGroup
}

func NewInvoker() *Invoker {
	return &Invoker{group: &sync.WaitGroup{}}
}

// Spawn a new goroutine and manage through the WaitGroup.
func (i *Invoker) Spawn(f func()) {
	i.group.Add(1)
	go func() {
		defer i.group.Done()
		f()
	}()
}

// Wait blocks until every spawned goroutine finished.
func (i *Invoker) Wait() {
	i.group.Wait()
}
