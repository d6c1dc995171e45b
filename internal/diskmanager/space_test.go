package diskmanager

import (
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8gabri8/TST-bioimage/internal/errors"
)

func fakeUsage(t *testing.T, free uint64, err error) {
	t.Helper()
	orig := usageFunc
	usageFunc = func(path string) (*disk.UsageStat, error) {
		if err != nil {
			return nil, err
		}
		return &disk.UsageStat{Path: path, Total: 10 * free, Free: free, UsedPercent: 90}, nil
	}
	t.Cleanup(func() { usageFunc = orig })
}

func TestCheckFreeSpace(t *testing.T) {
	fakeUsage(t, 200*bytesPerMB, nil)

	info, err := CheckFreeSpace("/results", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(200*bytesPerMB), info.FreeBytes)

	_, err = CheckFreeSpace("/results", 500)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySystem))
	assert.Contains(t, err.Error(), "only 200 MB free")
}

func TestCheckFreeSpaceDisabled(t *testing.T) {
	fakeUsage(t, 0, errors.NewStd("statfs failed"))

	_, err := CheckFreeSpace("/results", 0)
	require.NoError(t, err)

	_, err = CheckFreeSpace("/results", 1)
	require.Error(t, err)
}

func TestGetDiskSpaceOfTempDir(t *testing.T) {
	info, err := GetDiskSpace(t.TempDir())
	require.NoError(t, err)
	assert.Positive(t, info.TotalBytes)
}
