// Package webui serves the browser page for editing the relay config and
// restarting the relay.
//
// The page is embedded with go:embed; ui.dir in the relayctl config
// switches to serving it from disk. It talks to the same /api/config,
// /api/restart and /api/ws endpoints as any other client.
package webui
