// Package diskmanager checks the free space of the filesystem receiving run results.
package diskmanager

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

const bytesPerMB = 1024 * 1024

// DiskSpaceInfo holds the space of the filesystem containing a path
type DiskSpaceInfo struct {
	Path        string
	TotalBytes  uint64
	FreeBytes   uint64
	UsedPercent float64
}

// usageFunc is replaced in tests
var usageFunc = disk.Usage

// GetDiskSpace returns the space of the filesystem containing path
func GetDiskSpace(path string) (DiskSpaceInfo, error) {
	usage, err := usageFunc(path)
	if err != nil {
		return DiskSpaceInfo{}, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "disk_usage").
			Context("path", path).
			Build()
	}
	return DiskSpaceInfo{
		Path:        path,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// CheckFreeSpace returns an error when fewer than minFreeMB megabytes are
// available at path. A zero minimum disables the check.
func CheckFreeSpace(path string, minFreeMB int) (DiskSpaceInfo, error) {
	if minFreeMB <= 0 {
		return DiskSpaceInfo{Path: path}, nil
	}
	info, err := GetDiskSpace(path)
	if err != nil {
		return info, err
	}

	GetLogger().Debug("disk space checked",
		logger.String("path", path),
		logger.String("free_mb", fmt.Sprintf("%.1f", float64(info.FreeBytes)/bytesPerMB)),
		logger.Float64("used_percent", info.UsedPercent))

	if info.FreeBytes < uint64(minFreeMB)*bytesPerMB {
		return info, errors.Newf("only %d MB free at %s, %d MB required",
			info.FreeBytes/bytesPerMB, path, minFreeMB).
			Category(errors.CategorySystem).
			Context("path", path).
			Build()
	}
	return info, nil
}

// GetLogger returns the diskmanager module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
