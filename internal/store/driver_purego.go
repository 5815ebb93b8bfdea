//go:build !cgo_sqlite

package store

import (
	_ "modernc.org/sqlite" // pure Go SQLite driver, the default build
)

const (
	driverName = "sqlite"
	driverType = "purego"
)
