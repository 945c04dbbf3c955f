package crypto

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Keypair files hold the 64-byte secret as a JSON array of integers, the
// layout written by the Solana command line tools.

func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := readFileByPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read keypair %s", path)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, errors.Wrapf(err, "parse keypair %s", path)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, errors.Errorf("keypair %s: byte %d out of range: %d", path, i, v)
		}
		b[i] = byte(v)
	}
	return KeypairFromBytes(b)
}

func SaveKeypairFile(path string, kp *Keypair) error {
	b := kp.Bytes()
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create keypair dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write keypair")
	}
	return errors.Wrap(os.Rename(tmp, path), "install keypair")
}

func readFileByPath(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if name == "" || name == "." || name == ".." {
		return nil, errors.Errorf("invalid file name: %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}
