package internal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Command codes identify the kind of every packet exchanged
// with the server. Responses use the request code plus one,
// server pushes and failure reports have their own codes.
const (
	CommandPing byte = 0x01
	CommandPong byte = 0x02

	CommandAppendEvents          byte = 0x0E
	CommandAppendEventsCompleted byte = 0x0F

	CommandReadStreamEvents          byte = 0x10
	CommandReadStreamEventsCompleted byte = 0x11

	CommandSubscribeToStream     byte = 0x12
	CommandSubscriptionConfirmed byte = 0x13

	// Server push carrying an event for a running subscription,
	// correlated by the subscription identifier.
	CommandStreamEventAppeared byte = 0x14

	CommandUnsubscribe         byte = 0x15
	CommandSubscriptionDropped byte = 0x16

	CommandConnectPersistentSubscription   byte = 0x17
	CommandPersistentSubscriptionConfirmed byte = 0x18

	CommandBadRequest       byte = 0xF0
	CommandNotAuthenticated byte = 0xF1
	CommandServerError      byte = 0xFF
)

// CommandNames maps command codes to readable names for logging.
var CommandNames = map[byte]string{
	CommandPing:                            "PING",
	CommandPong:                            "PONG",
	CommandAppendEvents:                    "APPEND_EVENTS",
	CommandAppendEventsCompleted:           "APPEND_EVENTS_COMPLETED",
	CommandReadStreamEvents:                "READ_STREAM_EVENTS",
	CommandReadStreamEventsCompleted:       "READ_STREAM_EVENTS_COMPLETED",
	CommandSubscribeToStream:               "SUBSCRIBE_TO_STREAM",
	CommandSubscriptionConfirmed:           "SUBSCRIPTION_CONFIRMED",
	CommandStreamEventAppeared:             "STREAM_EVENT_APPEARED",
	CommandUnsubscribe:                     "UNSUBSCRIBE",
	CommandSubscriptionDropped:             "SUBSCRIPTION_DROPPED",
	CommandConnectPersistentSubscription:   "CONNECT_PERSISTENT_SUBSCRIPTION",
	CommandPersistentSubscriptionConfirmed: "PERSISTENT_SUBSCRIPTION_CONFIRMED",
	CommandBadRequest:                      "BAD_REQUEST",
	CommandNotAuthenticated:                "NOT_AUTHENTICATED",
	CommandServerError:                     "SERVER_ERROR",
}

const (
	// Set when the packet carries credentials after the
	// correlation identifier.
	flagAuthenticated byte = 0x01

	// Frames above this size are rejected instead of read,
	// protecting the reader from a corrupted length field.
	maxFrameSize = 16 * 1024 * 1024
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrShortFrame    = errors.New("frame too short for header")
)

// Credentials attached to outbound packets when the server
// requires authentication.
type Credentials struct {
	Login    string
	Password string
}

// Packet is the wire unit exchanged with the server. The payload
// is opaque here, encoding and decoding of the body belongs to
// the Codec collaborator.
type Packet struct {
	Command     byte
	Correlation UID
	Payload     []byte
	Auth        *Credentials
}

// Name returns the readable name of the packet command.
func (p Packet) Name() string {
	if name, ok := CommandNames[p.Command]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%#x)", p.Command)
}

// Writes a single packet frame. The frame is length prefixed,
// followed by the command code, a flags byte, the raw correlation
// identifier, optional credentials and the payload bytes.
func WritePacket(w *bufio.Writer, p Packet) error {
	correlation, err := uidToBytes(p.Correlation)
	if err != nil {
		return err
	}

	var flags byte
	size := 1 + 1 + 16 + len(p.Payload)
	if p.Auth != nil {
		flags |= flagAuthenticated
		size += 2 + len(p.Auth.Login) + 2 + len(p.Auth.Password)
	}
	if size > maxFrameSize {
		return ErrFrameTooLarge
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(size))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteByte(p.Command); err != nil {
		return err
	}
	if err := w.WriteByte(flags); err != nil {
		return err
	}
	if _, err := w.Write(correlation); err != nil {
		return err
	}
	if p.Auth != nil {
		if err := writeShortString(w, p.Auth.Login); err != nil {
			return err
		}
		if err := writeShortString(w, p.Auth.Password); err != nil {
			return err
		}
	}
	if _, err := w.Write(p.Payload); err != nil {
		return err
	}
	return w.Flush()
}

// Reads a single packet frame, blocking until a whole frame
// arrived or the stream fails.
func ReadPacket(r *bufio.Reader) (Packet, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return Packet{}, err
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxFrameSize {
		return Packet{}, ErrFrameTooLarge
	}
	if size < 1+1+16 {
		return Packet{}, ErrShortFrame
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return Packet{}, err
	}

	p := Packet{
		Command:     frame[0],
		Correlation: uidFromBytes(frame[2:18]),
	}
	rest := frame[18:]
	if frame[1]&flagAuthenticated != 0 {
		login, remainder, err := readShortString(rest)
		if err != nil {
			return Packet{}, err
		}
		password, remainder, err := readShortString(remainder)
		if err != nil {
			return Packet{}, err
		}
		p.Auth = &Credentials{Login: login, Password: password}
		rest = remainder
	}
	p.Payload = rest
	return p, nil
}

func writeShortString(w *bufio.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return ErrFrameTooLarge
	}
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(s)))
	if _, err := w.Write(length); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readShortString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, ErrShortFrame
	}
	length := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+length {
		return "", nil, ErrShortFrame
	}
	return string(buf[2 : 2+length]), buf[2+length:], nil
}
