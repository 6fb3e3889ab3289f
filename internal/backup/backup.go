// Package backup archives the data directory and restores it.
package backup

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conorfennell/flipstack/internal/storage"
)

const (
	prefix       = "flipstack_backup_"
	stampLayout  = "20060102_150405"
	zipExt       = ".zip"
	encryptedExt = ".zip.enc"
)

// Options configures a Manager.
type Options struct {
	// Keep is the number of archives retained; 0 keeps everything.
	Keep       int
	Passphrase string
	Logger     *slog.Logger
	Now        func() time.Time
}

// Archive describes a backup on disk.
type Archive struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted"`
}

// Manager creates and prunes backups of a data directory.
type Manager struct {
	dataDir string
	dir     string
	opts    Options
}

// New returns a Manager for dataDir. Archives go to dataDir/backups.
func New(dataDir string, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		dataDir: dataDir,
		dir:     filepath.Join(dataDir, "backups"),
		opts:    opts,
	}
}

// Dir is where archives are written.
func (m *Manager) Dir() string { return m.dir }

// Create writes a new archive of decks, assets and state files, then applies
// retention. It returns the archive path.
func (m *Manager) Create() (string, error) {
	var buf bytes.Buffer
	if err := m.writeZip(&buf); err != nil {
		return "", fmt.Errorf("failed to build backup: %w", err)
	}
	data := buf.Bytes()
	ext := zipExt
	if m.opts.Passphrase != "" {
		enc, err := encrypt(data, m.opts.Passphrase)
		if err != nil {
			return "", err
		}
		data, ext = enc, encryptedExt
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := m.nextPath(ext)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	m.opts.Logger.Info("Backup created", "path", path, "bytes", len(data), "encrypted", ext == encryptedExt)

	if _, err := m.Prune(); err != nil {
		m.opts.Logger.Warn("Failed to prune backups", "error", err)
	}
	return path, nil
}

func (m *Manager) nextPath(ext string) string {
	base := prefix + m.opts.Now().Format(stampLayout)
	path := filepath.Join(m.dir, base+ext)
	for n := 1; exists(path); n++ {
		path = filepath.Join(m.dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
	return path
}

func (m *Manager) writeZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, dir := range []string{"decks", "assets"} {
		root := filepath.Join(m.dataDir, dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || strings.HasSuffix(path, ".tmp") {
				return nil
			}
			return addFile(zw, m.dataDir, path)
		})
		if err != nil {
			return err
		}
	}
	for _, name := range storage.StateFiles() {
		path := filepath.Join(m.dataDir, name)
		if !exists(path) {
			continue
		}
		if err := addFile(zw, m.dataDir, path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// List returns existing archives, newest first.
func (m *Manager) List() ([]Archive, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Archive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		encrypted := strings.HasSuffix(name, encryptedExt)
		if !encrypted && !strings.HasSuffix(name, zipExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Archive{
			Name:      name,
			Path:      filepath.Join(m.dir, name),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Encrypted: encrypted,
		})
	}
	// Names embed the timestamp, so lexical order is chronological.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Prune deletes archives beyond the retention count and reports how many
// were removed.
func (m *Manager) Prune() (int, error) {
	if m.opts.Keep <= 0 {
		return 0, nil
	}
	archives, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, a := range archives[min(m.opts.Keep, len(archives)):] {
		if err := os.Remove(a.Path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", a.Name, err)
		}
		removed++
	}
	return removed, nil
}

// Restore unpacks archive into dataDir, overwriting files it contains.
// Encrypted archives need passphrase.
func Restore(archive, dataDir, passphrase string) (int, error) {
	data, err := os.ReadFile(archive)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup: %w", err)
	}
	if isEncrypted(data) {
		if data, err = decrypt(data, passphrase); err != nil {
			return 0, err
		}
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open backup: %w", err)
	}

	root := filepath.Clean(dataDir)
	restored := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest := filepath.Join(root, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return restored, fmt.Errorf("backup entry %q escapes the data directory", f.Name)
		}
		if err := extract(f, dest); err != nil {
			return restored, fmt.Errorf("failed to restore %s: %w", f.Name, err)
		}
		restored++
	}
	return restored, nil
}

func extract(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
