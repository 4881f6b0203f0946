package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the service uses.
//
//	graymixer/system/status                          retained online/offline
//	graymixer/device/{device}/status                 retained device status
//	graymixer/state/{device}                         retained full device state
//	graymixer/state/{device}/{channel}/{parameter}   retained parameter value
//	graymixer/scene/{device}                         current scene number
//	graymixer/meters/{device}                        meter snapshot
//	graymixer/command/{device}/{channel}/{parameter} inbound set
//	graymixer/command/{device}/batch                 inbound batch
//	graymixer/command/scene                          inbound scene recall
const TopicPrefix = "graymixer"

// Topics builds topic names.
type Topics struct{}

// SystemStatus returns the retained service status topic.
func (Topics) SystemStatus() string { return TopicPrefix + "/system/status" }

// DeviceStatus returns the retained status topic of one device.
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, deviceID)
}

// DeviceState returns the retained topic holding a device's full state.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, deviceID)
}

// ParameterState returns the retained topic holding one parameter value.
func (Topics) ParameterState(deviceID, channelID, parameter string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, deviceID, channelID, parameter)
}

// Scene returns the topic carrying a device's current scene.
func (Topics) Scene(deviceID string) string {
	return fmt.Sprintf("%s/scene/%s", TopicPrefix, deviceID)
}

// Meters returns the meter snapshot topic of one device.
func (Topics) Meters(deviceID string) string {
	return fmt.Sprintf("%s/meters/%s", TopicPrefix, deviceID)
}

// Command returns the inbound topic setting one parameter.
func (Topics) Command(deviceID, channelID, parameter string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", TopicPrefix, deviceID, channelID, parameter)
}

// BatchCommand returns the inbound topic applying several changes at once.
func (Topics) BatchCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/batch", TopicPrefix, deviceID)
}

// SceneCommand returns the inbound topic recalling a scene on every device.
func (Topics) SceneCommand() string { return TopicPrefix + "/command/scene" }

// AllCommands matches every inbound command.
func (Topics) AllCommands() string { return TopicPrefix + "/command/#" }

// CommandKind distinguishes the inbound command topics.
type CommandKind int

// Command kinds.
const (
	CommandParameter CommandKind = iota
	CommandBatch
	CommandScene
)

// CommandTopic is a parsed inbound command topic.
type CommandTopic struct {
	Kind      CommandKind
	DeviceID  string
	ChannelID string
	Parameter string
}

// ParseCommandTopic splits an inbound command topic into its parts.
func ParseCommandTopic(topic string) (CommandTopic, error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok {
		return CommandTopic{}, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" {
			return CommandTopic{}, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
		}
	}
	switch {
	case len(parts) == 1 && parts[0] == "scene":
		return CommandTopic{Kind: CommandScene}, nil
	case len(parts) == 2 && parts[1] == "batch":
		return CommandTopic{Kind: CommandBatch, DeviceID: parts[0]}, nil
	case len(parts) == 3:
		return CommandTopic{Kind: CommandParameter, DeviceID: parts[0], ChannelID: parts[1], Parameter: parts[2]}, nil
	}
	return CommandTopic{}, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
}
