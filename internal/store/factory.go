package store

import "fmt"

// NewStore opens the configured backend. Traces are always kept under dataDir.
func NewStore(kind, dataDir, sqlitePath string) (Store, error) {
	switch kind {
	case "", "fs":
		return NewFSStore(dataDir)
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
