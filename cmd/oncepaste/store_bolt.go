//go:build !sqlite

package main

import (
	"oncepaste/internal/storage/boltstore"
)

func openEmbedded(path string) (embeddedEngine, error) {
	return boltstore.Open(path)
}
