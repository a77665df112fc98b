package fat32_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/fat32"
	sdfattest "github.com/sdfat/sdfat/testing"
	"github.com/sdfat/sdfat/testing/mocks"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Offset of the root directory's first cluster in test images.
const rootDirOffset = 64 * 512

func TestCheck__CleanVolume(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	driver, root, _ := mountTestVolume(t, fat32.WithLogger(logger))

	sub, err := driver.Create(root, "sub", true)
	require.NoError(t, err)
	createFile(t, driver, root, "a.bin", randomBytes(t, 1000))
	createFile(t, driver, sub, "b.bin", randomBytes(t, 512))
	createFile(t, driver, sub, "empty", nil)

	report, err := driver.Check()
	require.NoError(t, err)
	assert.EqualValues(t, 3, report.Files)
	assert.EqualValues(t, 2, report.Directories)
	assert.EqualValues(t, 5, report.ReachableClusters)
	assert.Empty(t, report.Orphans)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.InfoLevel, entry.Level)
	assert.EqualValues(t, 3, entry.Data["files"])
}

func TestCheck__CrossLinkedFiles(t *testing.T) {
	image, device := sdfattest.NewFormattedImage(t, testVolumeSectors, fat32.FormatOptions{})
	driver, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err := driver.GetRoot()
	require.NoError(t, err)

	createFile(t, driver, root, "a", []byte("first"))
	createFile(t, driver, root, "b", []byte("second"))

	// Point the second file at the first one's cluster, leaving cluster 4 with
	// no owner.
	binary.LittleEndian.PutUint16(image[rootDirOffset+32+26:], 3)

	remounted, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	report, err := remounted.Check()
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)
	assert.Contains(t, err.Error(), "cross-linked")
	assert.Equal(t, []fat32.ClusterID{4}, report.Orphans)

	_, err = remounted.ReclaimOrphans()
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted, "must not repair a corrupted volume")
}

func TestCheck__SizeMismatch(t *testing.T) {
	image, device := sdfattest.NewFormattedImage(t, testVolumeSectors, fat32.FormatOptions{})
	driver, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err := driver.GetRoot()
	require.NoError(t, err)
	createFile(t, driver, root, "file", []byte("short"))

	binary.LittleEndian.PutUint32(image[rootDirOffset+28:], 2000)

	remounted, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err = remounted.GetRoot()
	require.NoError(t, err)

	_, err = remounted.Check()
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)

	_, err = remounted.ReadFile(root, "file")
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)
}

func TestCheck__ChainCycle(t *testing.T) {
	image, device := sdfattest.NewFormattedImage(t, testVolumeSectors, fat32.FormatOptions{})
	driver, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err := driver.GetRoot()
	require.NoError(t, err)
	createFile(t, driver, root, "loop", randomBytes(t, 1024))

	// Clusters 3 -> 4 -> 3
	binary.LittleEndian.PutUint32(image[32*512+4*4:], 3)

	remounted, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err = remounted.GetRoot()
	require.NoError(t, err)

	_, err = remounted.Check()
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)
	_, err = remounted.ReadFile(root, "loop")
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)
}

// failingFATDevice wraps a real device in a mock that passes everything
// through, except that writes to the first FAT fail.
func failingFATDevice(
	t *testing.T, device sdfat.BlockDevice, fatLBA uint32,
) (*gomock.Controller, *mocks.MockBlockDevice) {
	ctrl := gomock.NewController(t)
	mock := mocks.NewMockBlockDevice(ctrl)
	mock.EXPECT().SectorSize().Return(device.SectorSize()).AnyTimes()
	mock.EXPECT().ReadSectors(gomock.Any(), gomock.Any()).DoAndReturn(device.ReadSectors).AnyTimes()
	mock.EXPECT().WriteSectors(gomock.Not(fatLBA), gomock.Any()).DoAndReturn(device.WriteSectors).AnyTimes()
	mock.EXPECT().WriteSectors(fatLBA, gomock.Any()).Return(errors.New("injected write failure"))
	return ctrl, mock
}

func TestReclaimOrphans__InterruptedDelete(t *testing.T) {
	_, device := sdfattest.NewFormattedImage(t, testVolumeSectors, fat32.FormatOptions{})
	setup, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err := setup.GetRoot()
	require.NoError(t, err)
	createFile(t, setup, root, "doomed", randomBytes(t, 1500))
	createFile(t, setup, root, "safe", randomBytes(t, 100))

	ctrl, faulty := failingFATDevice(t, device, setup.Geometry().FATBeginLBA)
	defer ctrl.Finish()

	driver, err := fat32.Mount(faulty, 0)
	require.NoError(t, err)
	root, err = driver.GetRoot()
	require.NoError(t, err)

	err = driver.Delete(root, "doomed")
	assert.ErrorIs(t, err, sdfat.ErrIOFailed)
	assert.True(t, sdfat.IsFatal(err))

	// The entry is gone but its clusters are still marked as used on disk.
	recovered, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	root, err = recovered.GetRoot()
	require.NoError(t, err)
	_, err = recovered.Stat(root, "doomed")
	assert.ErrorIs(t, err, sdfat.ErrNotFound)

	report, err := recovered.Check()
	require.NoError(t, err)
	assert.Equal(t, []fat32.ClusterID{3, 4, 5}, report.Orphans)
	assert.EqualValues(t, 1979, freeClusters(t, recovered))

	reclaimed, err := recovered.ReclaimOrphans()
	require.NoError(t, err)
	assert.Equal(t, 3, reclaimed)
	assert.EqualValues(t, 1982, freeClusters(t, recovered))

	again, err := fat32.Mount(device, 0)
	require.NoError(t, err)
	report, err = again.Check()
	require.NoError(t, err)
	assert.Empty(t, report.Orphans, "reclaimed clusters must be freed on disk")
}

func TestWriteFile__FailedDataWriteRollsBack(t *testing.T) {
	_, device := sdfattest.NewFormattedImage(t, testVolumeSectors, fat32.FormatOptions{})

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	faulty := mocks.NewMockBlockDevice(ctrl)
	faulty.EXPECT().SectorSize().Return(uint(512)).AnyTimes()
	faulty.EXPECT().ReadSectors(gomock.Any(), gomock.Any()).DoAndReturn(device.ReadSectors).AnyTimes()
	// Cluster 3 is the first one a new file gets.
	faulty.EXPECT().WriteSectors(uint32(65), gomock.Any()).Return(errors.New("bad sector"))
	faulty.EXPECT().WriteSectors(gomock.Any(), gomock.Any()).DoAndReturn(device.WriteSectors).AnyTimes()

	driver, err := fat32.Mount(faulty, 0)
	require.NoError(t, err)
	root, err := driver.GetRoot()
	require.NoError(t, err)
	createFile(t, driver, root, "file", nil)

	err = driver.WriteFile(root, "file", randomBytes(t, 1000))
	assert.ErrorIs(t, err, sdfat.ErrIOFailed)
	assert.EqualValues(t, 1983, freeClusters(t, driver), "allocation must be rolled back")

	stat, err := driver.Stat(root, "file")
	require.NoError(t, err)
	assert.EqualValues(t, 0, stat.Size())
	assert.EqualValues(t, 0, stat.FirstCluster)

	// The device works again, so the same write now succeeds.
	contents := randomBytes(t, 1000)
	require.NoError(t, driver.WriteFile(root, "file", contents))
	readBack, err := driver.ReadFile(root, "file")
	require.NoError(t, err)
	assert.Equal(t, contents, readBack)
}
