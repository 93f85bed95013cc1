// Package ws streams run publications to WebSocket clients.
//
// Clients connect to /ws/runs and immediately receive the current run
// summary (event "current") when one exists. Every subsequent publish is
// pushed as event "run_published". Slow clients whose buffer fills are
// disconnected.
package ws
