package note

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the capability set the sync engine needs from the host's note
// storage. Paths are slash-separated and relative to the store root.
//
// The engine only ever reads and writes whole documents; frontmatter
// access goes through the structured Metadata type rather than the engine
// scraping text it did not author.
type Store interface {
	// Read loads and decodes the note at path.
	Read(path string) (Document, error)
	// Write encodes and stores the document at path, creating or
	// overwriting as needed.
	Write(path string, doc Document) error
	// Rename moves a note. The destination's parent folder must exist.
	Rename(oldPath, newPath string) error
	// List returns the note paths directly inside folder, non-recursive,
	// sorted. Subfolders are not descended into.
	List(folder string) ([]string, error)
	// EnsureFolder creates folder (and parents) if missing.
	EnsureFolder(folder string) error
	// Exists reports whether a note is present at path.
	Exists(path string) (bool, error)
}

// DirStore is a filesystem-backed Store rooted at a vault directory.
type DirStore struct {
	root string
}

// NewDirStore creates a store rooted at dir. The directory itself is
// created lazily by EnsureFolder/Write.
func NewDirStore(dir string) *DirStore {
	return &DirStore{root: dir}
}

// resolve maps a store-relative path onto the filesystem, rejecting
// escapes from the root.
func (s *DirStore) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", errors.New("path escapes store root: " + path)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DirStore) Read(path string) (Document, error) {
	full, err := s.resolve(path)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return Document{}, err
	}
	return Decode(string(data)), nil
}

// Write stores the document atomically: temp file in the target folder,
// then rename over the destination.
func (s *DirStore) Write(path string, doc Document) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	text, err := doc.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icsnotes-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, full)
}

func (s *DirStore) Rename(oldPath, newPath string) error {
	from, err := s.resolve(oldPath)
	if err != nil {
		return err
	}
	to, err := s.resolve(newPath)
	if err != nil {
		return err
	}
	return os.Rename(from, to)
}

func (s *DirStore) List(folder string) ([]string, error) {
	full, err := s.resolve(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		paths = append(paths, JoinPath(folder, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// JoinPath joins slash-separated store paths without pulling in
// path.Join's cleaning of dot segments.
func JoinPath(folder, name string) string {
	folder = strings.TrimSuffix(folder, "/")
	if folder == "" || folder == "." {
		return name
	}
	return folder + "/" + name
}

func (s *DirStore) EnsureFolder(folder string) error {
	full, err := s.resolve(folder)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

func (s *DirStore) Exists(path string) (bool, error) {
	full, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
