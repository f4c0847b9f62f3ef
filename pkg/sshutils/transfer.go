package sshutils

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// sftpClient opens an SFTP sub-channel, connecting and authenticating first when the
// session has no live transport. No shell is opened for a transfer.
func (s *Session) sftpClient(ctx context.Context) (SFTPClienter, error) {
	t := s.currentTransport()
	if t == nil || !t.IsActive() {
		s.closeHandles()
		var err error
		t, err = s.Connect(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.transport = t
		s.mu.Unlock()
	}
	if err := s.Authenticate(ctx, t); err != nil {
		return nil, err
	}
	return t.NewSFTPClient()
}

// GetFile downloads remotePath to localPath. Failures are logged and reported as false.
func (s *Session) GetFile(ctx context.Context, remotePath, localPath string) bool {
	if err := s.getFile(ctx, remotePath, localPath); err != nil {
		s.logTransferError(&TransferError{Op: "get", Source: remotePath, Target: localPath, Err: err})
		return false
	}
	return true
}

// PutFile uploads localPath to remotePath. Failures are logged and reported as false.
func (s *Session) PutFile(ctx context.Context, localPath, remotePath string) bool {
	if err := s.putFile(ctx, localPath, remotePath); err != nil {
		s.logTransferError(&TransferError{Op: "put", Source: localPath, Target: remotePath, Err: err})
		return false
	}
	return true
}

func (s *Session) getFile(ctx context.Context, remotePath, localPath string) error {
	client, err := s.sftpClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Stat(remotePath)
	if err != nil {
		return fmt.Errorf("failed to stat remote file: %w", err)
	}

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}

	tracker := newProgressTracker(info.Size(), s.progress)
	if _, err := io.Copy(io.MultiWriter(dst, tracker), src); err != nil {
		_ = dst.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("failed to copy remote file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close local file: %w", err)
	}
	tracker.Finish()
	return nil
}

func (s *Session) putFile(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}

	client, err := s.sftpClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	tracker := newProgressTracker(info.Size(), s.progress)
	if _, err := io.Copy(dst, io.TeeReader(src, tracker)); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to close remote file: %w", err)
	}
	tracker.Finish()
	return nil
}

func (s *Session) logTransferError(err *TransferError) {
	s.logger.Error("File transfer failed",
		zap.Error(err),
		zap.String("op", err.Op),
		zap.String("source", err.Source),
		zap.String("target", err.Target),
		zap.String("user", s.User),
		zap.Stack("stacktrace"),
	)
}

func (s *Session) logProgress(p Progress) {
	if p.Done {
		s.logger.Info("File transfer success.")
		return
	}
	s.logger.Infof("File size: %dB, sent: %dB, rate: %d%%", p.Total, p.Sent, p.Percent)
}
