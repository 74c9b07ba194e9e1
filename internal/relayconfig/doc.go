// Package relayconfig owns the media relay's own YAML config file.
//
// Store persists content posted through the API; Watcher notices edits
// made by anything else and asks the supervisor to restart the relay.
package relayconfig
