package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/noxer/bytewriter"
	"github.com/sdfat/sdfat"
)

const (
	// AttrReadOnly marks a directory entry as read-only.
	AttrReadOnly = 1 << iota
	// AttrHidden marks a directory entry that normal listings should hide.
	AttrHidden
	// AttrSystem marks an operating system file that must not be moved.
	AttrSystem
	// AttrVolumeLabel marks the entry holding the volume label. There's at most
	// one, in the root directory.
	AttrVolumeLabel
	// AttrDirectory marks a directory.
	AttrDirectory
	// AttrArchived is set whenever the entry is created or modified.
	AttrArchived

	// AttrLongName is the combination of flags that marks a long file name
	// fragment rather than a real entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// RawDirent is the on-disk representation of a directory entry.
type RawDirent struct {
	Name              [11]byte // 0
	AttributeFlags    uint8    // 11
	NTReserved        uint8    // 12
	CreatedTimeTenths uint8    // 13
	CreatedTime       uint16   // 14
	CreatedDate       uint16   // 16
	LastAccessedDate  uint16   // 18
	FirstClusterHigh  uint16   // 20
	LastModifiedTime  uint16   // 22
	LastModifiedDate  uint16   // 24
	FirstClusterLow   uint16   // 26
	FileSize          uint32   // 28
}

// NewRawDirentFromBytes decodes one 32-byte directory entry.
func NewRawDirentFromBytes(data []byte) (RawDirent, error) {
	raw := RawDirent{}
	if len(data) < DirentSize {
		return raw, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("directory entry needs %d bytes, got %d", DirentSize, len(data)))
	}
	err := binary.Read(bytes.NewReader(data[:DirentSize]), binary.LittleEndian, &raw)
	if err != nil {
		return raw, sdfat.ErrFileSystemCorrupted.Wrap(err)
	}
	return raw, nil
}

// Bytes encodes the entry in its on-disk format.
func (raw *RawDirent) Bytes() []byte {
	data := make([]byte, DirentSize)
	// Can't fail, the buffer is exactly the size of the struct.
	_ = binary.Write(bytewriter.New(data), binary.LittleEndian, raw)
	return data
}

// FirstCluster combines the two halves of the first cluster number.
func (raw RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(raw.FirstClusterHigh)<<16 | uint32(raw.FirstClusterLow))
}

// SetFirstCluster splits a cluster number into the two on-disk fields.
func (raw *RawDirent) SetFirstCluster(cluster ClusterID) {
	raw.FirstClusterHigh = uint16(uint32(cluster) >> 16)
	raw.FirstClusterLow = uint16(uint32(cluster) & 0xFFFF)
}

// IsFree is true for an entry that was deleted and can be reused.
func (raw RawDirent) IsFree() bool {
	return raw.Name[0] == freeMarker
}

// IsEndOfDirectory is true for the entry that marks the end of a directory.
// Neither it nor any entry after it is in use.
func (raw RawDirent) IsEndOfDirectory() bool {
	return raw.Name[0] == endMarker
}

// IsLongNameFragment is true for the VFAT entries holding pieces of a long
// file name.
func (raw RawDirent) IsLongNameFragment() bool {
	return raw.AttributeFlags&0x3F == AttrLongName
}

// IsVolumeLabel is true for the entry holding the volume label.
func (raw RawDirent) IsVolumeLabel() bool {
	return !raw.IsLongNameFragment() && raw.AttributeFlags&AttrVolumeLabel != 0
}

// IsDirectory is true if the entry is a subdirectory (including . and ..).
func (raw RawDirent) IsDirectory() bool {
	return raw.AttributeFlags&AttrDirectory != 0
}

// IsDotEntry is true for the . and .. entries of a subdirectory.
func (raw RawDirent) IsDotEntry() bool {
	return raw.Name == dotName || raw.Name == dotDotName
}

// IsVisible is true if the entry describes a file or directory, i.e. it's
// neither free, a long name fragment, nor the volume label.
func (raw RawDirent) IsVisible() bool {
	return !raw.IsFree() &&
		!raw.IsEndOfDirectory() &&
		!raw.IsLongNameFragment() &&
		!raw.IsVolumeLabel()
}

// stampCreated sets all timestamps of the entry to `now`.
func (raw *RawDirent) stampCreated(now time.Time) {
	raw.CreatedDate = DateToInt(now)
	raw.CreatedTime = TimeToInt(now)
	raw.CreatedTimeTenths = TenthsToInt(now)
	raw.stampModified(now)
}

// stampModified updates the modification and access timestamps.
func (raw *RawDirent) stampModified(now time.Time) {
	raw.LastModifiedDate = DateToInt(now)
	raw.LastModifiedTime = TimeToInt(now)
	raw.LastAccessedDate = raw.LastModifiedDate
	raw.AttributeFlags |= AttrArchived
}

////////////////////////////////////////////////////////////////////////////////

// Dirent is a snapshot of a directory entry in a user-friendly format. It
// implements [os.FileInfo].
//
// A Dirent is only a copy. Changing the file it came from doesn't update it.
type Dirent struct {
	name         string
	RawName      [11]byte
	FirstCluster ClusterID
	size         uint32
	raw          RawDirent
}

// NewDirentFromRaw converts a raw directory entry.
func NewDirentFromRaw(raw RawDirent) Dirent {
	return Dirent{
		name:         DecodeShortName(raw.Name),
		RawName:      raw.Name,
		FirstCluster: raw.FirstCluster(),
		size:         raw.FileSize,
		raw:          raw,
	}
}

// Name returns the display name of the entry, e.g. "README.TXT".
func (dirent Dirent) Name() string {
	return dirent.name
}

// Size returns the length of the file in bytes. Directories are always 0.
func (dirent Dirent) Size() int64 {
	return int64(dirent.size)
}

func (dirent Dirent) Mode() os.FileMode {
	mode := os.FileMode(0o666)
	if dirent.raw.AttributeFlags&AttrReadOnly != 0 {
		mode = 0o444
	}
	if dirent.IsDir() {
		return mode | 0o111 | os.ModeDir
	}
	return mode
}

func (dirent Dirent) ModTime() time.Time {
	return TimestampFromParts(dirent.raw.LastModifiedDate, dirent.raw.LastModifiedTime, 0)
}

// CreatedTime returns the creation timestamp, if the entry has one.
func (dirent Dirent) CreatedTime() time.Time {
	return TimestampFromParts(
		dirent.raw.CreatedDate, dirent.raw.CreatedTime, dirent.raw.CreatedTimeTenths)
}

func (dirent Dirent) IsDir() bool {
	return dirent.raw.IsDirectory()
}

// Attributes returns the raw attribute flags of the entry.
func (dirent Dirent) Attributes() uint8 {
	return dirent.raw.AttributeFlags
}

// Sys returns a copy of the raw directory entry.
func (dirent Dirent) Sys() interface{} {
	return dirent.raw
}

var _ os.FileInfo = Dirent{}
