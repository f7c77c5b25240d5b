//go:build cgo

package store

// The libsql driver is cgo-only; it is registered only in cgo builds.
import _ "github.com/tursodatabase/go-libsql"
