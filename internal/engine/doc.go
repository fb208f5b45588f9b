// Package engine dispatches item change events to the sync consumers.
//
// ARCHITECTURE:
//
// Single-Writer Dispatch:
// Every session runs under one writer lock. Host deliveries arrive through
// Enqueue and the Run loop; API and CLI operations arrive through Submit.
// This ensures:
// - Consumers never race on the same item
// - Reproducible event log on replay
// - Simple reasoning about causality
//
// Event Processing Flow:
// 1. A write buffers a change event on its session (session.Emit)
// 2. dispatch() drains the buffer in FIFO order
// 3. Each event is written to the event log (content-addressed id)
// 4. Already-logged events are skipped; new ones go to every consumer
// 5. Events emitted by consumers join the same buffer
// 6. When the buffer is empty the session ends and its processed sets clear
//
// CRITICAL PATTERNS:
//
// Processed sets: each consumer claims an item before working on it, so a
// consumer's own writes cannot re-trigger it within a session.
//
// Quotas: a session may dispatch at most MaxSteps events, which bounds
// cascades across distinct items.
//
// Log and continue: one consumer's failure is logged and returned, but the
// remaining consumers still see the event.
package engine
