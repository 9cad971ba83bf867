// Package ctxkey defines context key types shared by more than one package.
// It must not import other internal packages.
package ctxkey

// LoggerKey is the context key type for the request-scoped logger.
// The mock backend middleware stores a logger carrying the request_id here.
type LoggerKey struct{}
