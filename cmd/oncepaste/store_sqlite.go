//go:build sqlite

package main

import (
	"oncepaste/internal/storage/sqlitestore"
)

func openEmbedded(path string) (embeddedEngine, error) {
	return sqlitestore.Open(path)
}
