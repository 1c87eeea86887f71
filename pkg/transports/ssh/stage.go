package ssh

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"

	"github.com/pacrec/pacrec/pkg/engine"
)

// Stager uploads local package files to the remote host so the primary
// backend can install them there. Paths in the request refer to the
// controller's filesystem; the remote pacman needs them staged first.
type Stager struct {
	runner *Runner
}

// NewStager creates a stager over an established runner connection.
func NewStager(r *Runner) *Stager {
	return &Stager{runner: r}
}

// Upload copies one local file to remotePath, creating parent directories.
func (s *Stager) Upload(ctx context.Context, localPath, remotePath string) error {
	client, err := s.runner.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer local.Close()

	remote, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	s.runner.log.Debugf("staged %s to %s", localPath, remotePath)
	return nil
}

// StageRequests uploads the local-file targets of a request and rewrites
// them to their staged remote paths. Non-file names pass through unchanged.
func (s *Stager) StageRequests(ctx context.Context, requests []engine.PackageRequest) ([]engine.PackageRequest, error) {
	staged := make([]engine.PackageRequest, len(requests))
	for i, req := range requests {
		if !req.IsLocalPath {
			staged[i] = req
			continue
		}
		remotePath := path.Join(s.runner.config.StageDir, filepath.Base(req.Name))
		if err := s.Upload(ctx, req.Name, remotePath); err != nil {
			return nil, err
		}
		staged[i] = engine.NewPackageRequest(remotePath)
	}
	return staged, nil
}

// Cleanup removes the staging directory on the remote host.
func (s *Stager) Cleanup(ctx context.Context) error {
	client, err := s.runner.getClient()
	if err != nil {
		return err
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to create sftp client: %w", err)
	}
	defer sftpClient.Close()

	return sftpClient.RemoveAll(s.runner.config.StageDir)
}
