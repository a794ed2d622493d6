package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Open selects a Sink implementation using environment variables.
//
//	FINZOPS_BACKUP_DRIVER: fs|s3|memory (default fs)
//	FINZOPS_BACKUP_FS_ROOT: directory when driver=fs (default <reportDir>/backups)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context, region, reportDir string) (Sink, error) {
	driver := os.Getenv("FINZOPS_BACKUP_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		root := os.Getenv("FINZOPS_BACKUP_FS_ROOT")
		if root == "" {
			root = filepath.Join(reportDir, "backups")
		}
		return NewFilesystem(root)
	case DriverS3:
		return OpenS3FromEnv(ctx, region)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backup driver %s", driver)
	}
}
