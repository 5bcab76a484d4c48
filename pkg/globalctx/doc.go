// Package globalctx defines the diagnostic events a Peer reports about its
// connections and the sink that receives them.
//
// Events are fire-and-forget: issuing one never fails or blocks the caller's
// operation. What the sink does with them (logging, history, fan-out to
// observers) is outside the Peer's concern.
package globalctx
