// Package codec translates between normalised mixer values and MIDI wire
// messages.
//
// It provides:
//   - Scale and Linear normalisers mapping float domains to device integers
//   - Builders for Control-Change, Note-On, Program-Change, NRPN and SysEx
//   - Decode, which classifies a raw inbound message
//   - NRPNParser, which reassembles four-message NRPN sequences
//   - Splitter, which frames a raw DIN-MIDI byte stream into messages
//
// Builders validate every argument before anything is produced, so an
// out-of-range channel or value never reaches a transport. Message
// construction and parsing use gitlab.com/gomidi/midi/v2.
package codec
