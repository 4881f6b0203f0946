package board

import (
	"fmt"

	"github.com/nerrad567/gray-logic-mixer/internal/mixer"
)

// Address is the hardware location of one channel.
type Address struct {
	Type   mixer.ChannelType
	Number int // 1-based position within the type
	Index  int // hardware index as used on the wire
}

type typeIndex struct {
	t     mixer.ChannelType
	index int
}

// ChannelMap is the bijection between channel ids and hardware addresses for
// one model. It is immutable after construction.
type ChannelMap struct {
	byID    map[string]Address
	byAddr  map[typeIndex]string
	byIndex map[int][]string
	ids     []string
}

// IndexFunc maps a channel type and 1-based number to a hardware index.
type IndexFunc func(t mixer.ChannelType, n int) int

// SequentialIndex numbers channels from zero within each type.
func SequentialIndex(_ mixer.ChannelType, n int) int { return n - 1 }

// NewChannelMap builds the map for every channel declared by caps.
func NewChannelMap(caps mixer.DeviceCapabilities, index IndexFunc) (*ChannelMap, error) {
	if index == nil {
		index = SequentialIndex
	}
	m := &ChannelMap{
		byID:    make(map[string]Address),
		byAddr:  make(map[typeIndex]string),
		byIndex: make(map[int][]string),
	}
	for _, t := range mixer.ChannelTypes {
		for n := 1; n <= caps.Count(t); n++ {
			id := mixer.ChannelID(t, n)
			addr := Address{Type: t, Number: n, Index: index(t, n)}
			key := typeIndex{t, addr.Index}
			if prev, ok := m.byAddr[key]; ok {
				return nil, fmt.Errorf("%w: %s and %s both map to %s/%d", ErrDuplicateIndex, prev, id, t, addr.Index)
			}
			m.byID[id] = addr
			m.byAddr[key] = id
			m.byIndex[addr.Index] = append(m.byIndex[addr.Index], id)
			m.ids = append(m.ids, id)
		}
	}
	return m, nil
}

// Resolve returns the address of a channel id.
func (m *ChannelMap) Resolve(channelID string) (Address, error) {
	addr, ok := m.byID[channelID]
	if !ok {
		return Address{}, &mixer.InvalidChannelError{ChannelID: channelID}
	}
	return addr, nil
}

// Lookup returns the channel id at a typed hardware index.
func (m *ChannelMap) Lookup(t mixer.ChannelType, index int) (string, bool) {
	id, ok := m.byAddr[typeIndex{t, index}]
	return id, ok
}

// Find returns the channel id at a hardware index when exactly one channel
// of any type uses it. Models with a flat index space use this.
func (m *ChannelMap) Find(index int) (string, bool) {
	ids := m.byIndex[index]
	if len(ids) != 1 {
		return "", false
	}
	return ids[0], true
}

// IDs returns every channel id in console order.
func (m *ChannelMap) IDs() []string {
	return append([]string(nil), m.ids...)
}

// Len returns the number of mapped channels.
func (m *ChannelMap) Len() int { return len(m.ids) }
