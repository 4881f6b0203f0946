package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default serial DIN-MIDI baud rate.
const DefaultBaudRate = 31250

// Port is an open bidirectional link to one device.
type Port interface {
	// Send writes one complete message.
	Send(msg []byte) error

	// Listen delivers every inbound message to onMsg and transport failures
	// to onErr. Callbacks run on the transport's goroutine and must not block.
	Listen(onMsg func(msg []byte), onErr func(error)) (stop func(), err error)

	// Close releases the port. It is safe to call more than once.
	Close() error

	String() string
}

// DialFunc opens a Port for a connection string.
type DialFunc func(ctx context.Context, conn string) (Port, error)

// Endpoint is a parsed connection string.
type Endpoint struct {
	Scheme string
	Name   string // MIDI output port name or serial device path
	InName string // MIDI input port name, defaults to Name
	Baud   int
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.Name
}

// ParseConnection parses a connection string into an Endpoint.
func ParseConnection(conn string) (Endpoint, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidConnection)
	}
	scheme, rest, ok := strings.Cut(conn, "://")
	if !ok {
		scheme, rest = "midi", conn
	}

	switch scheme {
	case "midi":
		name, rawQuery, _ := strings.Cut(rest, "?")
		if name == "" {
			return Endpoint{}, fmt.Errorf("%w: missing MIDI port name", ErrInvalidConnection)
		}
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidConnection, err)
		}
		ep := Endpoint{Scheme: "midi", Name: name, InName: q.Get("in")}
		if ep.InName == "" {
			ep.InName = name
		}
		return ep, nil

	case "serial":
		u, err := url.Parse(conn)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidConnection, err)
		}
		if u.Path == "" {
			return Endpoint{}, fmt.Errorf("%w: missing serial device path", ErrInvalidConnection)
		}
		ep := Endpoint{Scheme: "serial", Name: u.Path, Baud: DefaultBaudRate}
		if b := u.Query().Get("baud"); b != "" {
			baud, err := strconv.Atoi(b)
			if err != nil || baud <= 0 {
				return Endpoint{}, fmt.Errorf("%w: invalid baud %q", ErrInvalidConnection, b)
			}
			ep.Baud = baud
		}
		return ep, nil

	default:
		return Endpoint{}, fmt.Errorf("%w: %q (use midi or serial)", ErrUnsupportedScheme, scheme)
	}
}

// Dial opens the port described by conn. Opening is abandoned when ctx is
// done first; a port that opens late is closed.
func Dial(ctx context.Context, conn string) (Port, error) {
	ep, err := ParseConnection(conn)
	if err != nil {
		return nil, err
	}

	type result struct {
		port Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		switch ep.Scheme {
		case "midi":
			r.port, r.err = openMIDI(ep)
		case "serial":
			r.port, r.err = openSerial(ep)
		}
		done <- r
	}()

	select {
	case r := <-done:
		return r.port, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.port != nil {
				_ = r.port.Close()
			}
		}()
		return nil, fmt.Errorf("dial %s: %w", ep, ctx.Err())
	}
}
