package sshutils

import (
	"io"
	"os"

	"github.com/pkg/sftp"
)

// SFTPClientWrapper implements SFTPClienter on top of *sftp.Client.
type SFTPClientWrapper struct {
	Client *sftp.Client
}

// Open returns the *sftp.File itself so io.Copy can use its concurrent WriteTo.
func (w *SFTPClientWrapper) Open(path string) (io.ReadCloser, error) {
	f, err := w.Client.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create returns the *sftp.File itself so io.Copy can use its concurrent ReadFrom.
func (w *SFTPClientWrapper) Create(path string) (io.WriteCloser, error) {
	f, err := w.Client.Create(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (w *SFTPClientWrapper) Stat(path string) (os.FileInfo, error) {
	return w.Client.Stat(path)
}

func (w *SFTPClientWrapper) Close() error {
	return w.Client.Close()
}
