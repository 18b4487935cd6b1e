// Package logger provides structured logging utilities built on Go's standard
// slog package, with environment-specific factory options and a set of
// pre-built attribute helpers for the chat relay domain.
//
// # Basic Usage
//
// Create loggers using the factory function with configuration options:
//
//	import "github.com/dmitrymomot/chatrelay/core/logger"
//
//	// Development: text format, debug level
//	log := logger.New(logger.WithDevelopment("chatrelay"))
//
//	// Production: JSON format, info level
//	log := logger.New(logger.WithProduction("chatrelay"))
//
//	log.Info("server starting",
//		logger.Component("server"),
//		logger.Event("startup"),
//	)
//
// # Attribute Helpers
//
// Attribute helpers are nil-safe: passing a nil error or empty identifier
// yields an empty attribute that slog silently drops:
//
//	log.Error("broadcast failed",
//		logger.Room(roomID),
//		logger.Error(err),
//	)
//
// Components that take an optional *slog.Logger default to logger.Discard(),
// which drops all records.
package logger
