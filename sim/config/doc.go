// Package config provides configuration management for the SimuTrador client.
//
// The config package handles:
//   - Loading settings from environment variables and an optional .env file
//   - Nested keys using double-underscore delimiters
//   - Typed defaults for every setting
//   - Endpoint helpers for the WebSocket and REST services
//
// Configuration Format:
//
// Settings are grouped the way the services consume them. Environment
// variables use double underscores to express nesting:
//
//	SERVER__WEBSOCKET__URL=ws://127.0.0.1:8003
//	AUTH__SERVER_URL=http://127.0.0.1:8001
//	AUTH__API_KEY=sk-...
//	SESSION__DEFAULT_INITIAL_CAPITAL=50000.00
//
// The path to the .env file can be overridden with ENV=/path/to/.env. A
// missing .env file is not an error; the process environment always wins.
//
// Usage:
//
//	settings, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	url := settings.SimulateURL() // ws://127.0.0.1:8003/ws/simulate
//
// Defaults:
//
// Every field has a default suitable for local development against a
// SimuTrador stack on 127.0.0.1. Only AUTH__API_KEY has no default because
// it identifies the caller.
package config
