package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/api"
	"github.com/wricardo/simutrador-go/sim/client"
	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/sim/session"
)

const (
	// healthTimeout bounds the health_check dial plus the single frame read.
	healthTimeout = 10 * time.Second
	// historyTimeout bounds the warmup-history wait after start_simulation.
	historyTimeout = 30 * time.Second
)

// Server exposes the trading SDK as MCP tools so agents can drive
// simulations, place orders and query market data over a single interface.
type Server struct {
	client    *client.Client
	sessions  *session.Service
	data      *api.DataService
	healthURL string
	log       zerolog.Logger

	mcpServer *server.MCPServer
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger. Defaults to a disabled logger.
func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates an MCP server over an already-connected trading client.
// healthURL is the ws health endpoint used by the health_check tool.
func NewServer(c *client.Client, sessions *session.Service, data *api.DataService, healthURL string, opts ...ServerOption) *Server {
	s := &Server{
		client:    c,
		sessions:  sessions,
		data:      data,
		healthURL: healthURL,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initMCPServer()
	return s
}

// initMCPServer initializes the MCP server with all tools
func (s *Server) initMCPServer() {
	s.mcpServer = server.NewMCPServer(
		"SimuTrador",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`SimuTrador - MCP Interface

This server fronts a trading-simulation SDK connected to a remote
SimuTrador server. Simulations replay historical market data; orders fill
against that replay, never against a live market.

TYPICAL WORKFLOW:
1. health_check to verify the server is reachable.
2. available_symbols / fetch_candles to explore the data universe.
3. start_simulation with symbols and a date range. The result carries the
   session_id and a summary of the warmup history.
4. submit_orders against that session_id while the simulation advances.
5. list_sessions / get_session / delete_session for session management.

AVAILABLE TOOLS:
- health_check: Ping the trading server's health endpoint
- start_simulation: Open a simulation session and wait for warmup history
- submit_orders: Send an order batch to a running session
- list_sessions: List the caller's sessions
- get_session: Get the status of one session
- delete_session: Delete a session
- fetch_candles: Fetch historical OHLCV bars for a symbol
- available_symbols: List symbols available for a timeframe

All tool results are JSON. Market and limit orders are supported; attach
stop_loss/take_profit levels for bracket behavior. Quantities are whole
shares. Dates are YYYY-MM-DD.`),
	)

	s.registerTools()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "health_check",
		Description: "Check that the trading server's WebSocket health endpoint responds",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleHealthCheck)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "start_simulation",
		Description: "Open a new simulation session and wait for its warmup history",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbols": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Symbols to simulate (e.g. [\"AAPL\",\"MSFT\"])",
				},
				"start_date": map[string]interface{}{
					"type":        "string",
					"description": "Simulation start date (YYYY-MM-DD)",
				},
				"end_date": map[string]interface{}{
					"type":        "string",
					"description": "Simulation end date (YYYY-MM-DD)",
				},
				"initial_capital": map[string]interface{}{
					"type":        "number",
					"description": "Starting cash (defaults to the configured session default)",
				},
				"timeframe": map[string]interface{}{
					"type":        "string",
					"description": "Bar timeframe such as 1min or 1day (default 1min)",
				},
				"warmup_bars": map[string]interface{}{
					"type":        "integer",
					"description": "Bars of history to receive before the first tick",
				},
				"adjusted": map[string]interface{}{
					"type":        "boolean",
					"description": "Use split/dividend adjusted prices",
				},
			},
			Required: []string{"symbols", "start_date", "end_date"},
		},
	}, s.handleStartSimulation)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "submit_orders",
		Description: "Submit a batch of orders to a running simulation session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Target session ID",
				},
				"orders": map[string]interface{}{
					"type":        "array",
					"description": "Orders to submit",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"symbol":        map[string]interface{}{"type": "string"},
							"side":          map[string]interface{}{"type": "string", "enum": []string{"buy", "sell"}},
							"quantity":      map[string]interface{}{"type": "integer", "description": "Whole shares"},
							"type":          map[string]interface{}{"type": "string", "enum": []string{"market", "limit"}, "description": "Defaults to market"},
							"price":         map[string]interface{}{"type": "number", "description": "Limit price (limit orders only)"},
							"stop_loss":     map[string]interface{}{"type": "number"},
							"take_profit":   map[string]interface{}{"type": "number"},
							"time_in_force": map[string]interface{}{"type": "string", "enum": []string{"day", "gtc", "ioc"}, "description": "Defaults to day"},
						},
						"required": []string{"symbol", "side", "quantity"},
					},
				},
			},
			Required: []string{"session_id", "orders"},
		},
	}, s.handleSubmitOrders)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List the caller's simulation sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListSessions)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get the status of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleGetSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_session",
		Description: "Delete a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID to delete",
				},
			},
			Required: []string{"session_id"},
		},
	}, s.handleDeleteSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "fetch_candles",
		Description: "Fetch historical OHLCV bars for a symbol",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"symbol": map[string]interface{}{
					"type":        "string",
					"description": "Symbol to fetch (e.g. AAPL)",
				},
				"timeframe": map[string]interface{}{
					"type":        "string",
					"description": "Bar timeframe such as 1min or 1day (default 1min)",
				},
				"start_date": map[string]interface{}{
					"type":        "string",
					"description": "Range start (YYYY-MM-DD)",
				},
				"end_date": map[string]interface{}{
					"type":        "string",
					"description": "Range end (YYYY-MM-DD)",
				},
				"page_size": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum bars to return (capped at 10000)",
				},
			},
			Required: []string{"symbol"},
		},
	}, s.handleFetchCandles)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "available_symbols",
		Description: "List symbols available for a timeframe",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"timeframe": map[string]interface{}{
					"type":        "string",
					"description": "Bar timeframe such as 1min or 1day (default 1min)",
				},
			},
		},
	}, s.handleAvailableSymbols)
}

// GetMCPServer returns the underlying MCP server for serving
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// jsonResult renders a tool result as indented JSON text.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Tool handlers

func (s *Server) handleHealthCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	status, err := client.CheckHealth(ctx, s.healthURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		Endpoint string `json:"endpoint"`
		*protocol.HealthStatus
	}{Endpoint: s.healthURL, HealthStatus: status})
}

func (s *Server) handleStartSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	symbolsRaw, _ := args["symbols"].([]interface{})
	symbols := make([]string, 0, len(symbolsRaw))
	for _, v := range symbolsRaw {
		if sym, ok := v.(string); ok {
			symbols = append(symbols, sym)
		}
	}

	req := protocol.StartSimulationRequest{
		Symbols:   symbols,
		Timeframe: "1min",
	}
	req.StartDate, _ = args["start_date"].(string)
	req.EndDate, _ = args["end_date"].(string)
	if tf, ok := args["timeframe"].(string); ok && tf != "" {
		req.Timeframe = tf
	}
	if capital, ok := args["initial_capital"].(float64); ok {
		req.InitialCapital = capital
	}
	if warmup, ok := args["warmup_bars"].(float64); ok {
		req.WarmupBars = int(warmup)
	}
	req.Adjusted, _ = args["adjusted"].(bool)

	sessionID, err := s.client.StartSimulation(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.log.Info().Str("session_id", sessionID).Strs("symbols", symbols).Msg("Simulation started via MCP")

	histCtx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()
	snapshot, err := s.client.WaitForHistorySnapshot(histCtx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session %s started but warmup history did not arrive: %v", sessionID, err)), nil
	}

	warmup := make(map[string]int, len(snapshot.Candles))
	for sym, candles := range snapshot.Candles {
		warmup[sym] = len(candles)
	}

	return jsonResult(struct {
		SessionID string         `json:"session_id"`
		Timeframe string         `json:"timeframe"`
		Warmup    map[string]int `json:"warmup_bars_by_symbol"`
	}{SessionID: sessionID, Timeframe: snapshot.Timeframe, Warmup: warmup})
}

func (s *Server) handleSubmitOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)

	// Round-trip the raw argument through JSON so order fields decode with
	// the wire tags instead of a hand-written field walk.
	rawOrders, err := json.Marshal(args["orders"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid orders argument: %v", err)), nil
	}
	var orders []protocol.Order
	if err := json.Unmarshal(rawOrders, &orders); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid orders argument: %v", err)), nil
	}

	for i := range orders {
		if orders[i].Type == "" {
			orders[i].Type = protocol.OrderTypeMarket
		}
	}

	ack, err := s.client.SubmitOrders(ctx, sessionID, orders, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.log.Info().Str("session_id", sessionID).Int("orders", len(orders)).Msg("Orders submitted via MCP")

	return jsonResult(ack)
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		Count    int                    `json:"count"`
		Sessions []protocol.SessionInfo `json:"sessions"`
	}{Count: len(sessions), Sessions: sessions})
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)

	info, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(info)
}

func (s *Server) handleDeleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]string{"deleted": sessionID})
}

func (s *Server) handleFetchCandles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	symbol, _ := args["symbol"].(string)

	params := api.FetchParams{}
	params.Timeframe, _ = args["timeframe"].(string)
	params.StartDate, _ = args["start_date"].(string)
	params.EndDate, _ = args["end_date"].(string)
	if size, ok := args["page_size"].(float64); ok {
		params.PageSize = int(size)
	}

	bars, err := s.data.FetchCandles(ctx, symbol, params)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		Symbol string         `json:"symbol"`
		Bars   int            `json:"bars"`
		Data   []api.PriceBar `json:"data"`
	}{Symbol: symbol, Bars: len(bars), Data: bars})
}

func (s *Server) handleAvailableSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	timeframe, _ := args["timeframe"].(string)

	symbols, err := s.data.AvailableSymbols(ctx, timeframe)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(struct {
		Count   int      `json:"count"`
		Symbols []string `json:"symbols"`
	}{Count: len(symbols), Symbols: symbols})
}
