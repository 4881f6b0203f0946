package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps one message. A full Qu-24 state dump is well under it.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept it.
// State topics are retained so late subscribers see the current mix;
// commands never are.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %w: %s is %d bytes", ErrPublishFailed, ErrPayloadTooLarge, topic, len(payload))
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed); err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}
	c.published.Add(1)
	return nil
}

// PublishJSON marshals v and publishes it at the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, c.QoS(), retained)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, c.QoS(), true)
}

// QoS returns the configured QoS level.
func (c *Client) QoS() byte { return byte(c.cfg.QoS) }

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: %d", ErrInvalidQoS, qos)
	}
	return nil
}
