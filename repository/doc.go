// Package repository provides a generic repository built on Bun whose reads
// attach entities to a change tracker and whose writes are registered for
// the next unit of work save.
package repository
