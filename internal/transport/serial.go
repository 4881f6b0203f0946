package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/gray-logic-mixer/internal/codec"
)

const (
	serialReadTimeout = 100 * time.Millisecond
	serialReadBuffer  = 256
)

// serialPort carries MIDI over a serial line (USB-DIN adapters, MIDI
// shields). Inbound bytes are framed with codec.Splitter.
type serialPort struct {
	name string
	port serial.Port

	writeMu sync.Mutex

	mu     sync.Mutex
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func openSerial(ep Endpoint) (*serialPort, error) {
	p, err := serial.Open(ep.Name, &serial.Mode{BaudRate: ep.Baud})
	if err != nil {
		var pe *serial.PortError
		if errors.As(err, &pe) && pe.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("%w: %s: %w", ErrPortNotFound, ep.Name, err)
		}
		return nil, fmt.Errorf("open serial %s: %w", ep.Name, err)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial %s read timeout: %w", ep.Name, err)
	}
	return &serialPort{name: ep.Name, port: p}, nil
}

func (s *serialPort) Send(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := s.port.Write(msg)
	return err
}

func (s *serialPort) Listen(onMsg func([]byte), onErr func(error)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.done != nil {
		return nil, ErrAlreadyListening
	}
	done := make(chan struct{})
	s.done = done
	s.wg.Add(1)
	go s.readLoop(done, onMsg, onErr)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			s.wg.Wait()
			s.mu.Lock()
			s.done = nil
			s.mu.Unlock()
		})
	}, nil
}

func (s *serialPort) readLoop(done <-chan struct{}, onMsg func([]byte), onErr func(error)) {
	defer s.wg.Done()
	var splitter codec.Splitter
	buf := make([]byte, serialReadBuffer)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := s.port.Read(buf)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && onErr != nil {
				onErr(fmt.Errorf("serial %s read: %w", s.name, err))
			}
			return
		}
		if n > 0 {
			splitter.Write(buf[:n], onMsg)
		}
	}
}

func (s *serialPort) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.port.Close()
	s.wg.Wait()
	return err
}

func (s *serialPort) String() string { return "serial://" + s.name }
