package transport

import (
	"errors"
	"fmt"
	"sync"

	midi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// midiPort is a system MIDI in/out pair opened through the registered
// gomidi driver.
type midiPort struct {
	name string
	in   drivers.In
	out  drivers.Out

	mu     sync.Mutex
	stop   func()
	closed bool
}

func openMIDI(ep Endpoint) (*midiPort, error) {
	out, err := midi.FindOutPort(ep.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: output %q: %w", ErrPortNotFound, ep.Name, err)
	}
	in, err := midi.FindInPort(ep.InName)
	if err != nil {
		return nil, fmt.Errorf("%w: input %q: %w", ErrPortNotFound, ep.InName, err)
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("open output %q: %w", ep.Name, err)
	}
	if err := in.Open(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("open input %q: %w", ep.InName, err)
	}
	return &midiPort{name: ep.Name, in: in, out: out}, nil
}

func (p *midiPort) Send(msg []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return p.out.Send(msg)
}

func (p *midiPort) Listen(onMsg func([]byte), onErr func(error)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.stop != nil {
		return nil, ErrAlreadyListening
	}
	stop, err := midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		onMsg(append([]byte(nil), msg...))
	}, midi.UseSysEx(), midi.HandleError(func(err error) {
		if onErr != nil {
			onErr(err)
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", p.name, err)
	}
	p.stop = stop
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stop != nil {
			p.stop()
			p.stop = nil
		}
	}, nil
}

func (p *midiPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	return errors.Join(p.in.Close(), p.out.Close())
}

func (p *midiPort) String() string { return "midi://" + p.name }
