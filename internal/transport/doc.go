// Package transport opens the byte-level links to mixing consoles.
//
// A connection string selects the transport:
//
//	midi://Qu-24 MIDI Out          system MIDI port (gomidi driver)
//	midi://Out Name?in=In Name     separate input and output port names
//	serial:///dev/ttyUSB0?baud=31250   DIN-MIDI over a serial adapter
//
// A string without a scheme is treated as a MIDI port name.
//
// Every Port delivers whole MIDI messages to its listener; serial streams
// are framed with codec.Splitter before delivery.
package transport
