// Package mqtt publishes relay state to an MQTT broker and accepts
// lifecycle commands from it.
//
// It wraps github.com/eclipse/paho.mqtt.golang with relayctl's topic
// layout, presence handling and subscription bookkeeping:
//
//   - A retained "online" presence message is published to the
//     controller topic on every connect; the broker publishes the
//     retained "offline" Last Will if relayctl vanishes.
//   - Subscriptions are tracked and restored after a reconnect.
//   - Handlers run with panic recovery and their errors are logged.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, "mediamtx")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetLogger(logger)
//	if err := client.HandleCommands(supervisor, nil); err != nil {
//	    return err
//	}
//	_ = client.PublishStatus(supervisor.IsRunning())
package mqtt
