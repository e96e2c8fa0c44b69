// Package mcp exposes the trading SDK over the Model Context Protocol.
//
// The mcp package implements:
//   - MCP server for agent integration
//   - Tool definitions for simulation, order and market-data operations
//   - JSON tool results sized for LLM consumption
//
// MCP Tools:
//
// The package exposes the following tools:
//   - health_check: Ping the trading server's WebSocket health endpoint
//   - start_simulation: Open a session and wait for its warmup history
//   - submit_orders: Send an order batch to a running session
//   - list_sessions: List the caller's sessions
//   - get_session: Get the status of one session
//   - delete_session: Delete a session
//   - fetch_candles: Fetch historical OHLCV bars for a symbol
//   - available_symbols: List symbols available for a timeframe
//
// Transport Modes:
//
// The underlying mcp-go server runs over stdio for local MCP clients or
// behind an HTTP endpoint for remote integration; the simutrador CLI's
// serve-mcp command wires both.
//
// Usage:
//
//	srv := mcp.NewServer(tradingClient, sessionService, dataService, healthURL)
//	if err := server.ServeStdio(srv.GetMCPServer()); err != nil {
//		log.Fatal().Err(err).Msg("MCP server failed")
//	}
//
// Session Management:
//
// Tools that act on a running simulation take a session_id parameter, so a
// single connected server can drive several concurrent sessions. All
// session traffic shares one WebSocket connection through the SDK's
// multiplexer.
package mcp
