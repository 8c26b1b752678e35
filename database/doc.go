// Package database provides connection management, configuration types,
// logging, health checks, SQL error classification and the tracked Session
// that flushes entity changes through Bun.
package database
