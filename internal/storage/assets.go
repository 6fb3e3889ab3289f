package storage

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeAssetChars = regexp.MustCompile(`[^\w\s-]`)

// SaveAsset copies the file at src into the assets directory and returns the
// stored name. Names are sanitized; on collision an identical file is reused
// and a different one gets a _N suffix.
func (s *Store) SaveAsset(src string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to read asset %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("failed to read asset %s: is a directory", src)
	}

	ext := filepath.Ext(src)
	base := strings.TrimSuffix(filepath.Base(src), ext)
	safe := strings.ReplaceAll(strings.TrimSpace(unsafeAssetChars.ReplaceAllString(base, "")), " ", "_")
	if safe == "" {
		safe = "asset"
	}

	name := safe + ext
	for n := 1; ; n++ {
		dest := filepath.Join(s.AssetsDir(), name)
		if _, err := os.Stat(dest); isNotExist(err) {
			if err := copyFile(src, dest); err != nil {
				return "", err
			}
			return name, nil
		}
		if same, err := sameContent(src, dest); err == nil && same {
			return name, nil
		}
		name = fmt.Sprintf("%s_%d%s", safe, n, ext)
	}
}

// AssetPath returns the absolute path of a stored asset, "" for no asset.
func (s *Store) AssetPath(name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(s.AssetsDir(), filepath.Base(name))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

func sameContent(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	ha, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
