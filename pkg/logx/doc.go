// Package logx wraps zerolog behind a small structured-logging API.
//
// It exposes a value-type Logger with typed Field helpers, a console
// bootstrap constructor, and a Service that can swap sinks and levels at
// runtime (console and/or append-only file).
package logx
