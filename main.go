// Command simutrador is the command-line client for the SimuTrador trading
// simulation server.
//
// It talks to three server surfaces:
//  1. the auth and trading-data REST API (login, symbols, candles)
//  2. the multiplexed trading WebSocket (sessions, simulations, orders)
//  3. the WebSocket health endpoint
//
// It can also expose the whole SDK to AI agents as MCP tools, either over
// stdio (the default for editor integrations) or over an HTTP /mcp endpoint
// with optional ngrok tunneling for development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/simutrador-go/api"
	"github.com/wricardo/simutrador-go/observability"
	"github.com/wricardo/simutrador-go/sim/client"
	"github.com/wricardo/simutrador-go/sim/config"
	"github.com/wricardo/simutrador-go/sim/protocol"
	"github.com/wricardo/simutrador-go/sim/session"
	"github.com/wricardo/simutrador-go/sim/strategy"
	mcptransport "github.com/wricardo/simutrador-go/transport/mcp"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "SimuTrador Client"
)

const dateLayout = "2006-01-02"

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand assembles the CLI tree.
func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "simutrador",
		Usage:   "trading simulation client for the SimuTrador server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "path to the .env file with server and auth settings",
				Sources: cli.EnvVars("ENV"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("DEBUG"),
			},
		},
		Commands: []*cli.Command{
			healthCommand(),
			loginCommand(),
			dataCommand(),
			sessionCommand(),
			runCommand(),
			serveMCPCommand(),
		},
	}
}

// bootstrap loads the settings and logger every command shares. The --env
// flag overrides which .env file config.Load reads.
func bootstrap(cmd *cli.Command) (*config.Settings, zerolog.Logger, error) {
	if envFile := cmd.String("env"); envFile != "" {
		os.Setenv("ENV", envFile)
	}
	log := observability.InitLogger("simutrador", cmd.Bool("debug"))

	settings, err := config.Load()
	if err != nil {
		return nil, log, err
	}
	return settings, log, nil
}

// connect authenticates against the REST API and opens the multiplexed
// trading WebSocket. Tokens are minted lazily at dial time so a fresh
// credential backs every connection attempt.
func connect(ctx context.Context, settings *config.Settings, log zerolog.Logger) (*client.Client, error) {
	auth := api.NewAuthClient(settings.Auth.ServerURL,
		api.WithAuthLogger(log),
		api.WithAuthMaxAttempts(settings.Session.MaxRetryAttempts),
	)

	dial := client.DialWebSocketURL(func(ctx context.Context) (string, error) {
		if _, err := auth.Login(ctx, settings.Auth.APIKey); err != nil {
			return "", err
		}
		return auth.WebSocketURL(settings.SimulateURL())
	})

	c := client.New(dial, client.WithLogger(log))
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	if err := c.WaitReady(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check that the trading server is up",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, _, err := bootstrap(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			status, err := client.CheckHealth(ctx, settings.HealthURL())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Printf("Server status: %s (version %s)\n", status.Status, status.ServerVersion)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "exchange the configured API key for an access token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}

			auth := api.NewAuthClient(settings.Auth.ServerURL,
				api.WithAuthLogger(log),
				api.WithAuthMaxAttempts(settings.Session.MaxRetryAttempts),
			)
			if _, err := auth.Login(ctx, settings.Auth.APIKey); err != nil {
				return err
			}

			info, ok := auth.TokenInfo()
			if !ok {
				return fmt.Errorf("login succeeded but no token was cached")
			}
			fmt.Printf("Authenticated as %s\n", info.UserID)
			fmt.Printf("Token %s expires at %s\n", info.Token, info.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func dataCommand() *cli.Command {
	return &cli.Command{
		Name:  "data",
		Usage: "query the historical trading-data API",
		Commands: []*cli.Command{
			{
				Name:  "symbols",
				Usage: "list symbols with data available",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "timeframe", Value: "1min", Usage: "timeframe to check availability for"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}

					data, err := api.NewDataService(settings.Auth.ServerURL, api.WithDataLogger(log))
					if err != nil {
						return err
					}
					symbols, err := data.AvailableSymbols(ctx, cmd.String("timeframe"))
					if err != nil {
						return err
					}
					for _, symbol := range symbols {
						fmt.Println(symbol)
					}
					return nil
				},
			},
			{
				Name:      "fetch",
				Usage:     "fetch historical candles for one symbol",
				ArgsUsage: "SYMBOL",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "timeframe", Value: "1day", Usage: "bar timeframe"},
					&cli.StringFlag{Name: "start", Usage: "start date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "end", Usage: "end date (YYYY-MM-DD)"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "most recent bars to print"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					symbol := cmd.Args().First()
					if symbol == "" {
						return fmt.Errorf("symbol argument is required")
					}
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}

					data, err := api.NewDataService(settings.Auth.ServerURL, api.WithDataLogger(log))
					if err != nil {
						return err
					}
					bars, err := data.FetchCandles(ctx, symbol, api.FetchParams{
						Timeframe: cmd.String("timeframe"),
						StartDate: cmd.String("start"),
						EndDate:   cmd.String("end"),
					})
					if err != nil {
						return err
					}

					if limit := int(cmd.Int("limit")); limit > 0 && len(bars) > limit {
						bars = bars[len(bars)-limit:]
					}
					fmt.Printf("%-25s %10s %10s %10s %10s %12s\n", "TIMESTAMP", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
					for _, bar := range bars {
						fmt.Printf("%-25s %10.2f %10.2f %10.2f %10.2f %12.0f\n",
							bar.Timestamp.Format(time.RFC3339), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
					}
					return nil
				},
			},
		},
	}
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "manage simulation sessions on the server",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "register a new simulation session",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "symbols", Usage: "symbols to simulate", Required: true},
					&cli.StringFlag{Name: "start", Usage: "start date (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "end", Usage: "end date (YYYY-MM-DD)", Required: true},
					&cli.FloatFlag{Name: "capital", Usage: "initial capital (defaults to the configured value)"},
					&cli.StringFlag{Name: "provider", Usage: "data provider (defaults to the configured value)"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}
					start, err := time.Parse(dateLayout, cmd.String("start"))
					if err != nil {
						return fmt.Errorf("invalid start date: %w", err)
					}
					end, err := time.Parse(dateLayout, cmd.String("end"))
					if err != nil {
						return fmt.Errorf("invalid end date: %w", err)
					}

					c, err := connect(ctx, settings, log)
					if err != nil {
						return err
					}
					defer c.Close()

					svc := session.NewService(c, settings, session.WithLogger(log))
					info, err := svc.Create(ctx, session.CreateParams{
						Symbols:        cmd.StringSlice("symbols"),
						StartDate:      start,
						EndDate:        end,
						InitialCapital: cmd.Float("capital"),
						DataProvider:   cmd.String("provider"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("Created session %s\n", info.SessionID)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "list your sessions",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}
					c, err := connect(ctx, settings, log)
					if err != nil {
						return err
					}
					defer c.Close()

					sessions, err := session.NewService(c, settings, session.WithLogger(log)).List(ctx)
					if err != nil {
						return err
					}
					if len(sessions) == 0 {
						fmt.Println("No sessions")
						return nil
					}
					for _, info := range sessions {
						fmt.Println(formatSession(info))
					}
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "show one session",
				ArgsUsage: "SESSION_ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sessionID := cmd.Args().First()
					if sessionID == "" {
						return fmt.Errorf("session id argument is required")
					}
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}
					c, err := connect(ctx, settings, log)
					if err != nil {
						return err
					}
					defer c.Close()

					info, err := session.NewService(c, settings, session.WithLogger(log)).Get(ctx, sessionID)
					if err != nil {
						return err
					}
					fmt.Println(formatSession(*info))
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a session",
				ArgsUsage: "SESSION_ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sessionID := cmd.Args().First()
					if sessionID == "" {
						return fmt.Errorf("session id argument is required")
					}
					settings, log, err := bootstrap(cmd)
					if err != nil {
						return err
					}
					c, err := connect(ctx, settings, log)
					if err != nil {
						return err
					}
					defer c.Close()

					if err := session.NewService(c, settings, session.WithLogger(log)).Delete(ctx, sessionID); err != nil {
						return err
					}
					fmt.Printf("Deleted session %s\n", sessionID)
					return nil
				},
			},
		},
	}
}

// formatSession renders one session listing line.
func formatSession(info protocol.SessionInfo) string {
	line := fmt.Sprintf("%s  status=%s", info.SessionID, info.Status)
	if len(info.Symbols) > 0 {
		line += fmt.Sprintf("  symbols=%v", info.Symbols)
	}
	if info.CreatedAt != nil {
		line += fmt.Sprintf("  created=%s", info.CreatedAt.Format(time.RFC3339))
	}
	return line
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the moving-average crossover demo strategy",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "symbols", Value: []string{"AAPL"}, Usage: "symbols to trade"},
			&cli.StringFlag{Name: "start", Value: "2024-01-01", Usage: "simulation start date"},
			&cli.StringFlag{Name: "end", Value: "2024-03-01", Usage: "simulation end date"},
			&cli.StringFlag{Name: "timeframe", Value: "1day", Usage: "bar timeframe"},
			&cli.FloatFlag{Name: "capital", Usage: "initial capital (defaults to the configured value)"},
			&cli.IntFlag{Name: "warmup", Value: 30, Usage: "warmup bars delivered before the first tick"},
			&cli.IntFlag{Name: "short", Value: 5, Usage: "short moving-average window"},
			&cli.IntFlag{Name: "long", Value: 20, Usage: "long moving-average window"},
			&cli.IntFlag{Name: "size", Value: 10, Usage: "shares per entry"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			c, err := connect(ctx, settings, log)
			if err != nil {
				return err
			}
			defer c.Close()

			capital := cmd.Float("capital")
			if capital <= 0 {
				capital = settings.Session.DefaultInitialCapital
			}

			decider := strategy.NewSMACross(int(cmd.Int("short")), int(cmd.Int("long")), int(cmd.Int("size")))
			runner := strategy.NewRunner(c, strategy.NewDecisionStrategy(decider, log), strategy.WithLogger(log))

			res, err := runner.Run(ctx, protocol.StartSimulationRequest{
				Symbols:        cmd.StringSlice("symbols"),
				StartDate:      cmd.String("start"),
				EndDate:        cmd.String("end"),
				InitialCapital: capital,
				Timeframe:      cmd.String("timeframe"),
				WarmupBars:     int(cmd.Int("warmup")),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Session %s finished: %d ticks, %d fills\n", res.SessionID, res.Ticks, res.Fills)
			if res.End != nil {
				if res.End.Reason != "" {
					fmt.Printf("Reason: %s\n", res.End.Reason)
				}
				if res.End.FinalEquity != 0 {
					fmt.Printf("Final equity: %.2f (trades: %d)\n", res.End.FinalEquity, res.End.TotalTrades)
				}
			}
			return nil
		},
	}
}

func serveMCPCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve-mcp",
		Usage: "expose the trading SDK as MCP tools for AI agents",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "http", Usage: "serve MCP over HTTP instead of stdio"},
			&cli.StringFlag{Name: "addr", Value: "localhost:8080", Usage: "HTTP listen address"},
			&cli.BoolFlag{Name: "ngrok", Usage: "tunnel the HTTP endpoint through ngrok", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}

			c, err := connect(ctx, settings, log)
			if err != nil {
				return err
			}
			defer c.Close()

			data, err := api.NewDataService(settings.Auth.ServerURL, api.WithDataLogger(log))
			if err != nil {
				return err
			}
			sessions := session.NewService(c, settings, session.WithLogger(log))
			srv := mcptransport.NewServer(c, sessions, data, settings.HealthURL(), mcptransport.WithLogger(log))

			if !cmd.Bool("http") {
				// Stdio owns stdout for the protocol; the logger already
				// writes to stderr.
				log.Info().Msg("MCP stdio server ready")
				return server.ServeStdio(srv.GetMCPServer())
			}
			return serveHTTP(ctx, cmd, log, srv)
		},
	}
}

// newMCPRouter builds the HTTP surface: the JSON-RPC /mcp endpoint, the
// Prometheus /metrics endpoint and a /healthz probe.
func newMCPRouter(srv *mcptransport.Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := srv.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}).Methods("POST")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": Version})
	}).Methods("GET")

	return router
}

// serveHTTP runs the MCP HTTP endpoint until the process is signalled,
// optionally tunneled through ngrok.
func serveHTTP(ctx context.Context, cmd *cli.Command, log zerolog.Logger, srv *mcptransport.Server) error {
	addr := cmd.String("addr")
	router := newMCPRouter(srv)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", addr).Msg("MCP HTTP endpoint listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, cmd, log, router)
		}()
	}

	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	wg.Wait()
	log.Info().Msg("Server stopped")
	return nil
}

// runNgrokTunnel serves the same router through an ngrok endpoint so remote
// agents can reach a locally running MCP server.
func runNgrokTunnel(ctx context.Context, cmd *cli.Command, log zerolog.Logger, handler http.Handler) {
	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		log.Warn().Msg("Ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		log.Info().Str("domain", domain).Msg("Using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("Failed to start ngrok tunnel")
		return
	}
	defer func() {
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close ngrok tunnel")
		}
	}()

	log.Info().Str("url", tun.URL()).Msg("Ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Ngrok server error")
	}
	log.Info().Msg("Ngrok tunnel closed")
}
