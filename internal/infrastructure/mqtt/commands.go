package mqtt

import (
	"errors"
	"fmt"
)

// Command actions accepted on Topics.Command.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// ErrUnknownCommand is returned for a command topic with an unrecognised action.
var ErrUnknownCommand = errors.New("mqtt: unknown command")

// Controller is the lifecycle surface driven by inbound commands.
// process.Supervisor satisfies it.
type Controller interface {
	Start() bool
	Stop() bool
	Restart() bool
}

// CommandHook observes each executed command and whether it succeeded.
type CommandHook func(action string, ok bool)

// HandleCommands subscribes to this relay's command topics and drives ctl.
// Payloads are ignored; the action is taken from the last topic level.
func (c *Client) HandleCommands(ctl Controller, hook CommandHook) error {
	return c.Subscribe(c.topics.AllCommands(), byte(c.cfg.QoS), c.commandHandler(ctl, hook))
}

// StopCommands drops the command subscription so no further commands reach
// the controller, including after a reconnect.
func (c *Client) StopCommands() error {
	return c.Unsubscribe(c.topics.AllCommands())
}

func (c *Client) commandHandler(ctl Controller, hook CommandHook) MessageHandler {
	return func(topic string, _ []byte) error {
		action := c.topics.CommandAction(topic)

		var ok bool
		switch action {
		case ActionStart:
			ok = ctl.Start()
		case ActionStop:
			ok = ctl.Stop()
		case ActionRestart:
			ok = ctl.Restart()
		default:
			return fmt.Errorf("%w: %q on %s", ErrUnknownCommand, action, topic)
		}

		if hook != nil {
			hook(action, ok)
		}
		return nil
	}
}
