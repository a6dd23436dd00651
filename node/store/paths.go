package store

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// NetworkDir returns the on-disk directory for a network under datadir:
//
//	datadir/networks/<network>/
func NetworkDir(datadir string, network string) string {
	return filepath.Join(datadir, "networks", network)
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return errors.Wrapf(err, "mkdir %s", path)
	}
	return nil
}
