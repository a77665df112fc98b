package fat32

import (
	"fmt"

	"github.com/sdfat/sdfat"
)

// directory is a snapshot of every raw entry in a directory, read in one go.
// Operations change the snapshot and then write the whole thing back.
type directory struct {
	cluster ClusterID
	data    []byte
}

func (dir *directory) count() int {
	return len(dir.data) / DirentSize
}

func (dir *directory) entry(index int) RawDirent {
	// Can't fail, the slice is always a full entry.
	raw, _ := NewRawDirentFromBytes(dir.data[index*DirentSize:])
	return raw
}

func (dir *directory) setEntry(index int, raw RawDirent) {
	copy(dir.data[index*DirentSize:], raw.Bytes())
}

// visibleIndexes returns the slots holding real files and directories, in
// on-disk order. Scanning stops at the end-of-directory marker.
func (dir *directory) visibleIndexes() []int {
	indexes := make([]int, 0, dir.count())
	for i := 0; i < dir.count(); i++ {
		raw := dir.entry(i)
		if raw.IsEndOfDirectory() {
			break
		}
		if raw.IsVisible() {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

// find returns the slot of the entry with the given raw name, or -1.
func (dir *directory) find(rawName [11]byte) int {
	for _, i := range dir.visibleIndexes() {
		if dir.entry(i).Name == rawName {
			return i
		}
	}
	return -1
}

// freeSlot returns the first slot that's either deleted or past the end of the
// directory, or -1 if the directory is full.
func (dir *directory) freeSlot() int {
	for i := 0; i < dir.count(); i++ {
		raw := dir.entry(i)
		if raw.IsFree() || raw.IsEndOfDirectory() {
			return i
		}
	}
	return -1
}

// claimSlot stores `raw` in slot `index`. If the slot was the end-of-directory
// marker, the next slot becomes the new marker.
func (dir *directory) claimSlot(index int, raw RawDirent) {
	wasEnd := dir.entry(index).IsEndOfDirectory()
	dir.setEntry(index, raw)
	if wasEnd && index+1 < dir.count() {
		dir.data[(index+1)*DirentSize] = endMarker
	}
}

// hasChildren is true if the directory contains anything besides . and ..
func (dir *directory) hasChildren() bool {
	for _, i := range dir.visibleIndexes() {
		if !dir.entry(i).IsDotEntry() {
			return true
		}
	}
	return false
}

////////////////////////////////////////////////////////////////////////////////

// loadDirectory reads the entire contents of a directory.
func (driver *Driver) loadDirectory(dirent Dirent) (*directory, error) {
	if !dirent.IsDir() {
		return nil, sdfat.ErrNotADirectory.WithMessage(
			fmt.Sprintf("%q is not a directory", dirent.Name()))
	}
	if dirent.FirstCluster < 2 {
		return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"directory %q has invalid first cluster %d",
				dirent.Name(),
				dirent.FirstCluster))
	}

	data, err := driver.readChain(dirent.FirstCluster)
	if err != nil {
		return nil, err
	}
	return &directory{cluster: dirent.FirstCluster, data: data}, nil
}

// storeDirectory writes a directory snapshot back to disk. If the snapshot
// grew, the directory's chain grows with it.
func (driver *Driver) storeDirectory(dir *directory) error {
	start, err := driver.writeChain(dir.cluster, dir.data)
	if err != nil {
		return err
	}
	if start != dir.cluster {
		return sdfat.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"directory at cluster %d moved to %d while being written",
				dir.cluster,
				start))
	}
	return nil
}

// allocateSlot finds a slot for a new entry, growing the directory by one
// zeroed cluster if every slot is taken.
func (driver *Driver) allocateSlot(dir *directory) int {
	slot := dir.freeSlot()
	if slot >= 0 {
		return slot
	}

	slot = dir.count()
	dir.data = append(dir.data, make([]byte, driver.clusters.BytesPerCluster())...)
	driver.log.WithField("cluster", dir.cluster).Debug("directory is full, adding a cluster")
	return slot
}
