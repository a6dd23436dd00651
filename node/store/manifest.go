package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const SchemaVersionV1 uint32 = 1

// Manifest identifies what a data directory holds. The applied tip lives in
// the KV store so that it commits together with the coins it describes.
type Manifest struct {
	SchemaVersion uint32 `json:"schema_version"`
	Network       string `json:"network"`
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "MANIFEST.json")
}

func readManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(manifestPath(dir)) // #nosec G304 -- path derived from operator-controlled datadir.
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "manifest json")
	}
	return &m, nil
}

// writeManifestAtomic writes MANIFEST.json via temp file, fsync and rename.
func writeManifestAtomic(dir string, m *Manifest) error {
	if m == nil {
		return errors.New("manifest: nil")
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "manifest json")
	}
	b = append(b, '\n')

	final := manifestPath(dir)
	tmp := final + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path derived from operator-controlled datadir.
	if err != nil {
		return errors.Wrap(err, "manifest open tmp")
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	switch {
	case werr != nil:
		return errors.Wrap(werr, "manifest write tmp")
	case serr != nil:
		return errors.Wrap(serr, "manifest fsync tmp")
	case cerr != nil:
		return errors.Wrap(cerr, "manifest close tmp")
	}
	if err := os.Rename(tmp, final); err != nil {
		return errors.Wrap(err, "manifest rename")
	}
	d, err := os.Open(dir) // #nosec G304 -- dir derived from operator-controlled datadir.
	if err != nil {
		return errors.Wrap(err, "manifest fsync dir open")
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return errors.Wrap(err, "manifest fsync dir")
	}
	return errors.Wrap(d.Close(), "manifest fsync dir close")
}
