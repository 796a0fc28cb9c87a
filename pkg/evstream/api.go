package evstream

import "github.com/vramosp/go-evstream/internal"

// Re-exports for the types users hold while talking to the
// driver, so a client program only imports this package.
type Configuration = internal.Configuration
type ReconnectPolicy = internal.ReconnectPolicy
type Credentials = internal.Credentials
type Logger = internal.Logger
type Codec = internal.Codec
type Outcome = internal.Outcome
type Callback = internal.Callback
type ProposedEvent = internal.ProposedEvent
type RecordedEvent = internal.RecordedEvent
type Result = internal.Result

const (
	ResultSuccess              = internal.ResultSuccess
	ResultWrongExpectedVersion = internal.ResultWrongExpectedVersion
	ResultStreamDeleted        = internal.ResultStreamDeleted
	ResultAccessDenied         = internal.ResultAccessDenied
	ResultNoStream             = internal.ResultNoStream
	ResultTryAgain             = internal.ResultTryAgain
)

// Append to the head of a stream regardless of its version.
const AnyVersion int64 = -2

// Creates a configuration ready to be used against the given
// address.
func DefaultConfiguration(address string) *Configuration {
	return internal.DefaultConfiguration(address)
}

// Connect creates a client and starts the connection lifecycle
// against the configured address over TCP.
func Connect(configuration *Configuration) (*Client, error) {
	return ConnectWith(configuration, internal.NewTCPTransport(configuration.Address))
}

// ConnectWith creates a client over a user provided transport,
// TLS wrapped streams or test doubles for example.
func ConnectWith(configuration *Configuration, transport internal.Transport) (*Client, error) {
	runtime, err := internal.NewRuntime(configuration, transport)
	if err != nil {
		return nil, err
	}
	return &Client{
		configuration: configuration,
		runtime:       runtime,
		gen:           internal.NewGenerator(),
	}, nil
}
