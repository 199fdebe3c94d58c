// Package log wraps zerolog behind a small global logger with per-component
// child loggers. Call Init once at process start; everything else derives
// from Logger.
package log
