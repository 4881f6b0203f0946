package mqtt

import "errors"

// Sentinel errors. Returned errors wrap these with the topic or broker
// detail; compare with errors.Is.
var (
	// ErrNotConnected means the broker link is down. Relay publishes made
	// while reconnecting fail with it and are not queued.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	ErrConnectionFailed  = errors.New("mqtt: broker connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrPayloadTooLarge is wrapped together with ErrPublishFailed.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic covers empty topics and topics outside the
	// graymixer command tree.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
