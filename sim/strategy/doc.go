// Package strategy defines the trading strategy callback interface and the
// runner that drives strategies from a live simulation session.
//
// The strategy package implements:
//   - The Strategy interface with lifecycle and market-event callbacks
//   - OrderSpec, a transport-agnostic order intent for decision strategies
//   - DecisionStrategy, an adapter that executes the intents a Decider returns
//   - Runner, the event loop that feeds one strategy from one session
//   - SMACross, a moving-average crossover strategy usable as a demo
//
// Core Types:
//
// Strategy is implemented by user code. Callbacks receive the session id,
// the decoded event, and the session's candle store, which the runner has
// already updated for the triggering event. Base provides no-op callbacks
// so a strategy only implements what it needs.
//
// Architecture:
//
// The Runner starts a simulation, subscribes to the session's tick,
// execution_report and account_snapshot streams, waits for the warmup
// history, and then loops over the streams until simulation_end. Callbacks
// run sequentially on the runner's goroutine, never on the connection's
// reader loop, so a callback may submit orders and wait for the batch
// acknowledgement without stalling inbound frames.
//
// Usage:
//
//	c := client.New(client.DialWebSocket(url))
//	runner := strategy.NewRunner(c, strategy.NewSMACross(5, 20, 10))
//
//	result, err := runner.Run(ctx, protocol.StartSimulationRequest{
//		Symbols:        []string{"AAPL"},
//		StartDate:      "2024-01-01",
//		EndDate:        "2024-03-01",
//		InitialCapital: 100000,
//		Timeframe:      "1day",
//		WarmupBars:     20,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("ticks=%d fills=%d\n", result.Ticks, result.Fills)
//
// Decision Strategies:
//
// A Decider holds pure decision logic that inspects the store and the
// incoming tick and returns zero or more OrderSpec intents. Wrapping it in
// DecisionStrategy handles execution: intents are converted to wire orders
// and submitted as a single batch, with rejections logged. Strategies that
// need full control implement Strategy directly and may also implement
// ClientBinder to receive the client for order submission.
package strategy
