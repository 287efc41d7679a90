package s3

import (
	"context"
	"os"
	"path/filepath"

	"github.com/route1io/connectors/pkg/connectors/onedrive"
	"github.com/route1io/connectors/pkg/errors"
)

// DriveUploader is the part of the OneDrive client CopyToOneDrive uses.
type DriveUploader interface {
	UploadFile(ctx context.Context, driveID, remotePath, localPath string) (*onedrive.DriveItem, error)
}

// CopyToOneDrive copies an object to a OneDrive drive through a temporary
// local file. remotePath defaults to "/"+key.
func (c *Client) CopyToOneDrive(ctx context.Context, bucket, key string, drive DriveUploader, driveID, remotePath string) (*onedrive.DriveItem, error) {
	if remotePath == "" {
		remotePath = "/" + key
	}

	dir, err := os.MkdirTemp("", "route1-s3-onedrive-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp dir")
	}
	defer os.RemoveAll(dir)

	paths, err := c.Download(ctx, bucket, []string{key}, []string{filepath.Join(dir, "object")})
	if err != nil {
		return nil, err
	}
	return drive.UploadFile(ctx, driveID, remotePath, paths[0])
}
