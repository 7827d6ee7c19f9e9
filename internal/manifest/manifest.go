package manifest

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// Decode reads one manifest from r and applies field defaults.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, xerrors.Errorf("decode manifest: %w", err)
	}
	m.applyDefaults()
	return &m, nil
}

// Encode writes m as indented JSON.
func Encode(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return xerrors.Errorf("encode manifest: %w", err)
	}
	return nil
}

// Load reads the manifest stored at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Save writes the manifest atomically to path: the JSON goes into a temporary
// sibling first and is renamed over the target, so readers never observe a
// partially-written file.
func Save(path string, m *Manifest) error {
	if m == nil {
		return errors.New("nil manifest")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.Errorf("create manifest dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return xerrors.Errorf("create temp manifest: %w", err)
	}
	tmp := f.Name()
	if err := Encode(f, m); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
