/*
Package log provides structured logging for stevedore using zerolog.

The package wraps a single global zerolog.Logger with helpers that attach the
context a provisioning run cares about: which component logged, which node a remote
command targeted, which step was executing, and which run it belonged to.

# Architecture

	┌──────────────────── LOGGING ─────────────────────────┐
	│                                                       │
	│  log.Init(Config)                                     │
	│    - Level: trace/debug/info/warn/error               │
	│    - Format: console (default) or JSON (--log-json)   │
	│    - Output: stderr (stdout carries progress)         │
	│                      │                                │
	│  Context loggers     ▼                                │
	│    WithComponent("orchestrator")                      │
	│    WithNode("manager-1")                              │
	│    WithStep("setup-docker")                           │
	│    WithRun("4f0c...")                                 │
	└───────────────────────────────────────────────────────┘

# Levels

Remote command lines are logged at debug, their output at trace. Commands run with
the Sensitive option are logged as "<redacted>" at every level, so unseal keys and
tokens never reach the log stream.

# Usage

	log.Init(log.Config{Level: log.InfoLevel})

	nodeLog := log.WithNode("manager-1")
	nodeLog.Info().Str("status", "run: setup-docker.sh").Msg("Running command")
	nodeLog.Error().Err(err).Msg("Node faulted")

JSON output:

	{"level":"warn","node":"worker-2","fault":"timeout: online did not succeed within 5m0s","message":"Node faulted"}

Console output:

	2025-01-04T10:30:00Z WRN Node faulted fault="timeout: ..." node=worker-2
*/
package log
