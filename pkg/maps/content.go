package maps

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/FrunkQ/dynamic-map-renderer/pkg/assets"
)

const CONTENT_PREFIX = "maps"

var DEFAULT_EXTENSIONS = []string{"png", "jpg", "jpeg", "webp"}

// ContentStore answers questions about uploaded visual content.
type ContentStore interface {
	Exists(name string) bool
	HasAllowedExtension(name string) bool
}

// DirContent is a directory of map images.
type DirContent struct {
	dir        string
	extensions map[string]struct{}
}

func NewDirContent(dir string, extensions []string) (*DirContent, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = DEFAULT_EXTENSIONS
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, extension := range extensions {
		allowed[Extension("."+extension)] = struct{}{}
	}

	return &DirContent{
		dir:        dir,
		extensions: allowed,
	}, nil
}

func (d *DirContent) Dir() string {
	return d.dir
}

func (d *DirContent) Extensions() []string {
	out := make([]string, 0, len(d.extensions))
	for extension := range d.extensions {
		out = append(out, extension)
	}
	sort.Strings(out)
	return out
}

func (d *DirContent) HasAllowedExtension(name string) bool {
	_, ok := d.extensions[Extension(name)]
	return ok
}

// Path is the location on disk for name, or empty when name cannot be
// secured.
func (d *DirContent) Path(name string) string {
	secured := SecureFilename(name)
	if secured == "" {
		return ""
	}
	return filepath.Join(d.dir, secured)
}

func (d *DirContent) Exists(name string) bool {
	target := d.Path(name)
	if target == "" {
		return false
	}
	return assets.FileExists(target)
}

// List returns the sorted names of every file with an allowed extension.
func (d *DirContent) List() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !d.HasAllowedExtension(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Save stores an upload and returns the secured name it was saved under.
func (d *DirContent) Save(name string, reader io.Reader) (string, error) {
	if !d.HasAllowedExtension(name) {
		return "", fmt.Errorf("file type not allowed: %s", name)
	}

	secured := SecureFilename(name)
	if secured == "" || !d.HasAllowedExtension(secured) {
		return "", fmt.Errorf("invalid file name: %s", name)
	}

	err := assets.WriteStream(reader, filepath.Join(d.dir, secured))
	if err != nil {
		return "", err
	}

	return secured, nil
}

var _ ContentStore = (*DirContent)(nil)
