package fat32_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sdfat/sdfat"
	"github.com/sdfat/sdfat/drivers/fat32"
	sdfattest "github.com/sdfat/sdfat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat__Layout(t *testing.T) {
	image, _ := sdfattest.NewFormattedImage(t, 2048, fat32.FormatOptions{})

	assert.Equal(t, []byte{0x55, 0xAA}, image[510:512])
	assert.Equal(t, image[0:512], image[6*512:7*512], "backup boot sector differs")
	assert.Equal(t, image[512:1024], image[7*512:8*512], "backup FSInfo sector differs")
	assert.Equal(t, []byte("SDFAT   "), image[3:11])
	assert.Equal(t, []byte("NO NAME    "), image[71:82])
	assert.Equal(t, []byte("FAT32   "), image[82:90])

	const fatSize = 16 * 512
	firstFAT := image[32*512 : 32*512+fatSize]
	secondFAT := image[32*512+fatSize : 32*512+2*fatSize]
	assert.Equal(t, firstFAT, secondFAT, "FAT copies differ")

	assert.EqualValues(t, 0x0FFFFFF8, binary.LittleEndian.Uint32(firstFAT[0:]))
	assert.EqualValues(t, 0x0FFFFFFF, binary.LittleEndian.Uint32(firstFAT[4:]))
	assert.EqualValues(t, 0x0FFFFFFF, binary.LittleEndian.Uint32(firstFAT[8:]), "root directory chain")
	assert.Equal(t, make([]byte, fatSize-12), firstFAT[12:], "data clusters must start out free")

	assert.Equal(t, make([]byte, 512), image[64*512:65*512], "root directory must be empty")
}

func TestFormat__VolumeLabel(t *testing.T) {
	driver, image := sdfattest.MountNewVolume(
		t, 2048, fat32.FormatOptions{VolumeLabel: "my disk", VolumeID: 0xCAFEF00D})

	assert.Equal(t, "MY DISK", driver.VolumeLabel())
	assert.EqualValues(t, 0xCAFEF00D, binary.LittleEndian.Uint32(image[67:]))

	label := image[64*512 : 64*512+32]
	assert.Equal(t, []byte("MY DISK    "), label[0:11])
	assert.EqualValues(t, fat32.AttrVolumeLabel|fat32.AttrArchived, label[11])

	root, err := driver.GetRoot()
	require.NoError(t, err)
	entries, err := driver.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "volume label must not be listed")
}

func TestFormat__AtOffset(t *testing.T) {
	image, device := sdfattest.NewBlankImage(t, 512, 4096)
	require.NoError(t, fat32.Format(device, 2048, 2048, fat32.FormatOptions{SectorsPerCluster: 4}))
	assert.Equal(t, make([]byte, 2048*512), image[:2048*512], "wrote outside of the volume")

	driver, err := fat32.Mount(device, 2048)
	require.NoError(t, err)

	geometry := driver.Geometry()
	assert.EqualValues(t, 2048, geometry.LBAStart)
	assert.EqualValues(t, 2048+32, geometry.FATBeginLBA)
	assert.EqualValues(t, 2048, geometry.BytesPerCluster())

	root, err := driver.GetRoot()
	require.NoError(t, err)
	_, err = driver.Create(root, "hello.txt", false)
	require.NoError(t, err)

	contents := bytes.Repeat([]byte("hello, world\n"), 200)
	require.NoError(t, driver.WriteFile(root, "hello.txt", contents))

	readBack, err := driver.ReadFile(root, "HELLO.TXT")
	require.NoError(t, err)
	assert.Equal(t, contents, readBack)
	assert.Equal(t, make([]byte, 2048*512), image[:2048*512], "wrote outside of the volume")
}

func TestFormat__BadOptions(t *testing.T) {
	_, device := sdfattest.NewBlankImage(t, 512, 2048)

	err := fat32.Format(device, 0, 2048, fat32.FormatOptions{SectorsPerCluster: 3})
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)

	err = fat32.Format(device, 0, 2048, fat32.FormatOptions{ReservedSectors: 4})
	assert.ErrorIs(t, err, sdfat.ErrInvalidArgument)

	err = fat32.Format(device, 0, 2048, fat32.FormatOptions{VolumeLabel: "much too long"})
	assert.ErrorIs(t, err, sdfat.ErrNameTooLong)

	err = fat32.Format(device, 0, 33, fat32.FormatOptions{})
	assert.ErrorIs(t, err, sdfat.ErrNoSpaceOnDevice)
}
