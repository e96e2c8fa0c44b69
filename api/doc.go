// Package api provides the HTTP clients the SDK needs around the
// WebSocket simulation channel: JWT token exchange with the auth server
// and historical candle retrieval from the trading-data service.
//
// The api package implements:
//   - AuthClient: API key to JWT exchange, token caching with an expiry
//     buffer, and token-bearing WebSocket URL construction
//   - DataService: paged OHLCV retrieval and symbol listing, with an LRU
//     response cache
//   - Retry with exponential backoff for network failures and 5xx replies
//
// Endpoints:
//
// Authentication:
//   - POST {auth-server}/auth/token with an X-API-Key header and an empty
//     JSON body. 200 carries {access_token, token_type, expires_in,
//     user_id}; 401 means the key is invalid; 429 means rate limited.
//
// Trading data:
//   - GET {base}/trading-data/data/{symbol}?timeframe=&start_date=&end_date=&page_size=
//     returning {"data": [{timestamp, open, high, low, close, volume}]}
//   - GET {base}/trading-data/symbols?timeframe= returning ["AAPL", ...]
//
// Usage:
//
//	auth := api.NewAuthClient(settings.Auth.ServerURL)
//	if _, err := auth.Login(ctx, settings.Auth.APIKey); err != nil {
//		log.Fatal(err)
//	}
//	wsURL, err := auth.WebSocketURL(settings.SimulateURL())
//
//	data, err := api.NewDataService(settings.Auth.ServerURL)
//	bars, err := data.FetchCandles(ctx, "AAPL", api.FetchParams{Timeframe: "1day"})
//
// Error Handling:
//
// Authentication failures are reported as *AuthError with the HTTP status
// that produced them (zero for network errors). Invalid keys and rate
// limits fail immediately; network errors and 5xx replies are retried with
// exponential backoff before giving up. Trading-data failures are plain
// wrapped errors carrying the status code in their message.
package api
