// Package logger provides structured logging for the discovery module using
// zerolog.
//
// Every long-lived object (caches, managers, filters, the resolver) receives a
// *Logger at construction and scopes it with WithComponent. There is no global
// logger: the resolver owns the root one.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "discoveryctl").WithComponent("instance-cache")
//	log.Warn("dropping event", logger.Fields(logger.FieldAppID, appID))
package logger
