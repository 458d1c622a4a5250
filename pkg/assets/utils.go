package assets

import (
	"io"
	"os"
	"path/filepath"
)

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteBytes replaces the file at path with data. The write goes through a
// temporary file in the same directory so readers never see a partial file.
func WriteBytes(data []byte, path string) error {
	out, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())

	_, err = out.Write(data)
	if err != nil {
		out.Close()
		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	return os.Rename(out.Name(), path)
}

// WriteStream is WriteBytes for a reader, used for uploads.
func WriteStream(reader io.Reader, path string) error {
	out, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())

	_, err = io.Copy(out, reader)
	if err != nil {
		out.Close()
		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	return os.Rename(out.Name(), path)
}
