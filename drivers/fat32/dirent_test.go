package fat32

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawDirent__Layout(t *testing.T) {
	raw := RawDirent{
		Name:           rawName("HELLO   TXT"),
		AttributeFlags: AttrArchived,
		FileSize:       0x01020304,
	}
	raw.SetFirstCluster(0x0ABC1234)

	data := raw.Bytes()
	require.Len(t, data, DirentSize)
	assert.Equal(t, []byte("HELLO   TXT"), data[0:11])
	assert.EqualValues(t, AttrArchived, data[11])
	assert.Equal(t, []byte{0xBC, 0x0A}, data[20:22], "high half of first cluster")
	assert.Equal(t, []byte{0x34, 0x12}, data[26:28], "low half of first cluster")
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, data[28:32])

	decoded, err := NewRawDirentFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
	assert.EqualValues(t, 0x0ABC1234, decoded.FirstCluster())
}

func TestRawDirent__TooShort(t *testing.T) {
	_, err := NewRawDirentFromBytes(make([]byte, 31))
	assert.Error(t, err)
}

func TestRawDirent__Classification(t *testing.T) {
	file := RawDirent{Name: rawName("FILE       "), AttributeFlags: AttrArchived}
	assert.True(t, file.IsVisible())
	assert.False(t, file.IsDirectory())

	deleted := file
	deleted.Name[0] = freeMarker
	assert.True(t, deleted.IsFree())
	assert.False(t, deleted.IsVisible())

	end := RawDirent{}
	assert.True(t, end.IsEndOfDirectory())
	assert.False(t, end.IsVisible())

	longName := RawDirent{Name: rawName("Afile      "), AttributeFlags: AttrLongName}
	assert.True(t, longName.IsLongNameFragment())
	assert.False(t, longName.IsVolumeLabel())
	assert.False(t, longName.IsVisible())

	label := RawDirent{Name: rawName("MY VOLUME  "), AttributeFlags: AttrVolumeLabel}
	assert.True(t, label.IsVolumeLabel())
	assert.False(t, label.IsVisible())

	dot := RawDirent{Name: dotName, AttributeFlags: AttrDirectory}
	assert.True(t, dot.IsDotEntry())
	assert.True(t, dot.IsDirectory())
	assert.True(t, dot.IsVisible())

	escaped := RawDirent{Name: rawName("\x05ABC    TXT")}
	assert.True(t, escaped.IsVisible(), "0x05 marks a name starting with E5, not a free slot")
}

func TestRawDirent__Stamps(t *testing.T) {
	created := time.Date(2020, time.May, 4, 12, 30, 15, 0, time.UTC)
	modified := time.Date(2022, time.July, 1, 8, 0, 0, 0, time.UTC)

	raw := RawDirent{Name: rawName("A          ")}
	raw.stampCreated(created)
	raw.stampModified(modified)

	dirent := NewDirentFromRaw(raw)
	assert.Equal(t, created, dirent.CreatedTime())
	assert.Equal(t, modified, dirent.ModTime())
	assert.Equal(t, DateToInt(modified), raw.LastAccessedDate)
	assert.NotZero(t, dirent.Attributes()&AttrArchived)
}

func TestDirent__FileInfo(t *testing.T) {
	raw := RawDirent{
		Name:           rawName("NOTES   MD "),
		AttributeFlags: AttrReadOnly,
		FileSize:       1234,
	}
	raw.SetFirstCluster(9)

	var info os.FileInfo = NewDirentFromRaw(raw)
	assert.Equal(t, "NOTES.MD", info.Name())
	assert.EqualValues(t, 1234, info.Size())
	assert.False(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o444), info.Mode())
	assert.Equal(t, raw, info.Sys())

	dir := NewDirentFromRaw(RawDirent{Name: rawName("SUB        "), AttributeFlags: AttrDirectory})
	assert.True(t, dir.IsDir())
	assert.True(t, dir.Mode().IsDir())
	assert.Equal(t, os.FileMode(0o777), dir.Mode().Perm())
}
