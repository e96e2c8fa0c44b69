package client

import (
	"context"

	wstransport "github.com/wricardo/simutrador-go/transport/websocket"
)

var _ Transport = (*wstransport.Conn)(nil)

// DialWebSocket returns a DialFunc that connects to the given ws:// or
// wss:// URL with the default transport. Authentication tokens, if any,
// must already be embedded in the URL.
func DialWebSocket(url string) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		return wstransport.Dial(ctx, url)
	}
}

// DialWebSocketURL is like DialWebSocket but resolves the URL lazily at
// connect time, so short-lived credentials can be minted per attempt.
func DialWebSocketURL(resolve func(ctx context.Context) (string, error)) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		url, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		return wstransport.Dial(ctx, url)
	}
}
