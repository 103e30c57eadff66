package storage

import "io"

// Storage defines the interface for injected server-file storage. When
// a server is built from a launch configuration carrying personality
// files, the simulator materialises their contents here so tests can
// verify what would have landed on the instance.
type Storage interface {
	// Store writes the contents of one injected file and returns the
	// number of bytes written. injectPath is the target path inside the
	// server, e.g. "/root/.ssh/authorized_keys".
	Store(tenantID, serverID, injectPath string, data io.Reader) (int64, error)

	// Retrieve returns a ReadCloser for a stored injected file.
	Retrieve(tenantID, serverID, injectPath string) (io.ReadCloser, error)

	// Delete removes everything stored for a server.
	Delete(tenantID, serverID string) error

	// Exists checks whether an injected file exists in storage.
	Exists(tenantID, serverID, injectPath string) (bool, error)
}
