// Package broadcast fans out call-session events to live observers.
//
// # Hub
//
// The Hub maps call ids to sets of subscriptions:
//
//	hub := broadcast.NewHub(time.Second, logger)
//	sub := hub.Subscribe(ctx, callID)
//	for ev := range sub.Events() { ... }
//
// Publish delivers to every current subscription of the call. Sends are
// non-blocking against a per-subscription buffer; a subscriber whose buffer
// is full is evicted so it can never stall the publisher or its peers.
//
// # Events
//
// Event is a tagged union: connection_established (one-time snapshot for a
// late subscriber), call_started, analysis_update, phishing_alert,
// call_ended, heartbeat. There is no backlog or replay beyond the snapshot;
// all subsequent delivery is live-only, and no exactly-once guarantee is
// made.
//
// # Heartbeats
//
// A hub-owned loop sends a Heartbeat to any subscription that has been idle
// for a full interval, keeping transports alive and letting observers detect
// a silently stalled pipeline.
package broadcast
