// Package mqtt provides the broker connection used by the MQTT relay.
//
// The client reconnects with exponential back-off, replays subscriptions
// after every reconnect and keeps a retained status on
// graymixer/system/status, with a Last Will so a crash shows as offline.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        cmd, err := mqtt.ParseCommandTopic(topic)
//	        ...
//	    })
//
// TLS should be enabled whenever the broker is not on localhost.
package mqtt
