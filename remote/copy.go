package remote

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
)

// CopyTree recreates the directory tree rooted at localDir on the remote
// machine as remoteDir/<basename of localDir>, preserving file modes.
// __pycache__ directories are skipped; the bootstrap script purges stale
// bytecode on the remote side anyway.
func (c *Client) CopyTree(localDir, remoteDir string) error {
	if c.client == nil {
		return ErrNotConnected
	}

	ftp, err := c.client.NewSftp()
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer ftp.Close()

	root := filepath.Clean(localDir)
	target := path.Join(remoteDir, filepath.Base(root))

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}

		remotePath := target
		if rel != "." {
			remotePath = path.Join(target, filepath.ToSlash(rel))
		}

		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return fs.SkipDir
			}
			return ftp.MkdirAll(remotePath)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return uploadFile(ftp, p, remotePath)
	})
}

func uploadFile(ftp *sftp.Client, localPath, remotePath string) error {
	local, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return err
	}

	remote, err := ftp.Create(remotePath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(remote, local); err != nil {
		remote.Close()
		return err
	}
	if err := remote.Close(); err != nil {
		return err
	}

	return ftp.Chmod(remotePath, info.Mode().Perm())
}

// WriteFile writes data to an absolute remote path.
func (c *Client) WriteFile(remotePath string, data []byte, perm fs.FileMode) error {
	if c.client == nil {
		return ErrNotConnected
	}

	ftp, err := c.client.NewSftp()
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer ftp.Close()

	remote, err := ftp.Create(remotePath)
	if err != nil {
		return err
	}

	if _, err := remote.Write(data); err != nil {
		remote.Close()
		return err
	}
	if err := remote.Close(); err != nil {
		return err
	}

	return ftp.Chmod(remotePath, perm)
}
