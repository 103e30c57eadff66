package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Compile-time check that FileSystem implements Storage.
var _ Storage = (*FileSystem)(nil)

// FileSystem implements Storage using the local filesystem.
// Files are stored at <basePath>/<tenantID>/<serverID>/<escaped inject path>.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem storage rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

// serverPath returns the directory path for a given tenant and server.
func (fs *FileSystem) serverPath(tenantID, serverID string) string {
	return filepath.Join(fs.basePath, tenantID, serverID)
}

// filePath returns the full on-disk path for one injected file. The
// inject path is escaped into a single flat filename so "/etc/motd"
// cannot walk outside the server directory.
func (fs *FileSystem) filePath(tenantID, serverID, injectPath string) string {
	return filepath.Join(fs.serverPath(tenantID, serverID), url.PathEscape(injectPath))
}

// Store writes data from the reader to disk using atomic write (temp file + rename).
// It returns the number of bytes written.
func (fs *FileSystem) Store(tenantID, serverID, injectPath string, data io.Reader) (int64, error) {
	dir := fs.serverPath(tenantID, serverID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	// Write to a temp file in the same directory for atomic rename.
	tmp, err := os.CreateTemp(dir, "inject-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("writing data: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	dst := fs.filePath(tenantID, serverID, injectPath)
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("renaming temp file to %s: %w", dst, err)
	}

	// Rename succeeded; prevent deferred cleanup from removing the final file.
	tmpPath = ""

	return n, nil
}

// Retrieve opens a stored injected file and returns an io.ReadCloser.
func (fs *FileSystem) Retrieve(tenantID, serverID, injectPath string) (io.ReadCloser, error) {
	path := fs.filePath(tenantID, serverID, injectPath)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("injected file not found: %s/%s%s", tenantID, serverID, injectPath)
		}
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	return f, nil
}

// Delete removes the entire <tenantID>/<serverID>/ directory.
// It is idempotent: deleting a non-existent server returns no error.
func (fs *FileSystem) Delete(tenantID, serverID string) error {
	dir := fs.serverPath(tenantID, serverID)
	err := os.RemoveAll(dir)
	if err != nil {
		return fmt.Errorf("removing directory %s: %w", dir, err)
	}
	return nil
}

// Exists checks whether an injected file exists on disk.
func (fs *FileSystem) Exists(tenantID, serverID, injectPath string) (bool, error) {
	path := fs.filePath(tenantID, serverID, injectPath)
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking file %s: %w", path, err)
}
