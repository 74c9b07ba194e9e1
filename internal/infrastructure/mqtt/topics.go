package mqtt

import "strings"

// Topics builds the MQTT topics for one supervised relay.
//
// All topics live under <prefix>/<relay>:
//
//	relayctl/mediamtx/status              retained "running" | "stopped"
//	relayctl/mediamtx/event               lifecycle events (JSON)
//	relayctl/mediamtx/controller          retained relayctl online/offline (JSON, LWT)
//	relayctl/mediamtx/command/<action>    inbound start | stop | restart
type Topics struct {
	Prefix string
	Relay  string
}

func (t Topics) base() string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + t.Relay
}

// Status returns the retained relay run-state topic.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Event returns the lifecycle event topic.
func (t Topics) Event() string {
	return t.base() + "/event"
}

// Controller returns the retained relayctl presence topic, also used as LWT.
func (t Topics) Controller() string {
	return t.base() + "/controller"
}

// Command returns the topic for one inbound command.
func (t Topics) Command(action string) string {
	return t.base() + "/command/" + action
}

// AllCommands returns a pattern matching every inbound command.
func (t Topics) AllCommands() string {
	return t.base() + "/command/+"
}

// CommandAction extracts the action from a command topic, or "" if topic
// is not one of this relay's command topics.
func (t Topics) CommandAction(topic string) string {
	action, ok := strings.CutPrefix(topic, t.base()+"/command/")
	if !ok || action == "" || strings.Contains(action, "/") {
		return ""
	}
	return action
}
