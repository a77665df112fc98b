package fat32

import (
	"fmt"
	"math"
	"strings"

	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
	log "github.com/sirupsen/logrus"
)

// Driver gives access to one FAT32 volume on a block device.
//
// Every operation is a self-contained transaction: the directory involved is
// re-read from disk, changed, and written back before the call returns. The
// FAT is kept in memory and written to disk whenever a chain changes shape.
//
// A Driver is not safe for concurrent use.
type Driver struct {
	device     sdfat.BlockDevice
	bootSector *RawBootSector
	fsInfo     *RawFSInfo
	geometry   Geometry
	table      *Table
	clusters   *c.ClusterStream
	log        log.FieldLogger
	clock      sdfat.Clock
	mounted    bool
}

// New creates a driver for the volume on `device`. It must be mounted before
// it can be used.
func New(device sdfat.BlockDevice, options ...Option) *Driver {
	driver := &Driver{
		device: device,
		log:    discardLogger(),
		clock:  defaultClock,
	}
	for _, option := range options {
		option(driver)
	}
	return driver
}

// Mount is a shortcut for creating a driver and mounting the volume whose boot
// sector is at `lbaStart`.
func Mount(device sdfat.BlockDevice, lbaStart uint32, options ...Option) (*Driver, error) {
	driver := New(device, options...)
	err := driver.Mount(lbaStart)
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// Mount reads the boot sector, FSInfo sector and the first FAT of the volume
// starting at `lbaStart`. A driver can only be mounted once.
func (driver *Driver) Mount(lbaStart uint32) error {
	if driver.mounted {
		return sdfat.ErrAlreadyInProgress.WithMessage("volume is already mounted")
	}

	boot, err := ReadBootSector(driver.device, lbaStart)
	if err != nil {
		return err
	}
	geometry := NewGeometry(lbaStart, boot)

	fsInfo, err := ReadFSInfo(driver.device, geometry.FSInfoLBA)
	if err != nil {
		return err
	}

	if geometry.TotalClusters == 0 {
		return sdfat.ErrInvalidFileSystem.WithMessage("volume has no data clusters")
	}
	if uint32(geometry.RootCluster) >= geometry.UsableEntries() {
		return sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"root cluster %d is past the last cluster %d",
				geometry.RootCluster,
				geometry.UsableEntries()-1))
	}

	clusters, err := c.NewClusterStream(
		driver.device,
		uint(geometry.SectorsPerCluster),
		geometry.ClusterBeginLBA,
		2,
		ClusterID(geometry.UsableEntries()-1),
	)
	if err != nil {
		return sdfat.ErrInvalidFileSystem.Wrap(err)
	}

	table, err := LoadTable(driver.device, geometry)
	if err != nil {
		return err
	}

	driver.bootSector = boot
	driver.fsInfo = fsInfo
	driver.geometry = geometry
	driver.clusters = clusters
	driver.table = table
	driver.mounted = true

	driver.log.WithFields(log.Fields{
		"lba_start":           geometry.LBAStart,
		"fat_begin_lba":       geometry.FATBeginLBA,
		"cluster_begin_lba":   geometry.ClusterBeginLBA,
		"sectors_per_cluster": geometry.SectorsPerCluster,
		"sectors_per_fat":     geometry.SectorsPerFAT,
		"fats":                geometry.NumFATs,
		"root_cluster":        geometry.RootCluster,
		"fat_entries":         table.Len(),
	}).Debug("mounted FAT32 volume")
	return nil
}

func (driver *Driver) checkMounted() error {
	if !driver.mounted {
		return sdfat.ErrNotMounted
	}
	return nil
}

// Geometry returns the layout of the mounted volume.
func (driver *Driver) Geometry() Geometry {
	return driver.geometry
}

// VolumeLabel returns the label stored in the boot sector, without padding.
func (driver *Driver) VolumeLabel() string {
	if driver.bootSector == nil {
		return ""
	}
	return strings.TrimRight(string(driver.bootSector.VolumeLabel[:]), " ")
}

// GetRoot returns a directory entry for the root directory. It has no name and
// a size of 0.
func (driver *Driver) GetRoot() (Dirent, error) {
	err := driver.checkMounted()
	if err != nil {
		return Dirent{}, err
	}

	raw := RawDirent{AttributeFlags: AttrDirectory}
	raw.SetFirstCluster(driver.geometry.RootCluster)
	return Dirent{
		RawName:      raw.Name,
		FirstCluster: driver.geometry.RootCluster,
		raw:          raw,
	}, nil
}

// resolveParent turns the cluster stored in a ".." entry into a directory
// entry. The root directory is stored as cluster 0.
func (driver *Driver) resolveParent(dirent Dirent) (Dirent, error) {
	if dirent.FirstCluster == 0 {
		return driver.GetRoot()
	}
	return dirent, nil
}

// ReadDir lists the files and directories in `dir`, in on-disk order. Deleted
// entries, long name fragments and the volume label are skipped; . and .. are
// included. A .. entry pointing at the root gets the root's real cluster, so
// it can be passed back to any other method.
func (driver *Driver) ReadDir(dir Dirent) ([]Dirent, error) {
	err := driver.checkMounted()
	if err != nil {
		return nil, err
	}

	snapshot, err := driver.loadDirectory(dir)
	if err != nil {
		return nil, err
	}

	indexes := snapshot.visibleIndexes()
	dirents := make([]Dirent, 0, len(indexes))
	for _, i := range indexes {
		raw := snapshot.entry(i)
		dirent := NewDirentFromRaw(raw)
		if raw.Name == dotDotName && dirent.FirstCluster == 0 {
			dirent.FirstCluster = driver.geometry.RootCluster
		}
		dirents = append(dirents, dirent)
	}
	return dirents, nil
}

// lookup finds `name` in `dir`, returning the directory snapshot and the slot
// the entry is in.
func (driver *Driver) lookup(dir Dirent, name string) (*directory, int, error) {
	snapshot, err := driver.loadDirectory(dir)
	if err != nil {
		return nil, -1, err
	}

	rawName, ok := encodeLookupName(name)
	if !ok {
		return snapshot, -1, sdfat.ErrNotFound.WithMessage(
			fmt.Sprintf("%q is not a valid file name", name))
	}

	index := snapshot.find(rawName)
	if index < 0 {
		return snapshot, -1, sdfat.ErrNotFound.WithMessage(
			fmt.Sprintf("%q not found in %q", name, dir.Name()))
	}
	return snapshot, index, nil
}

// Stat returns the entry for `name` in `dir`. Names are compared in their 8.3
// form, so the comparison ignores case.
func (driver *Driver) Stat(dir Dirent, name string) (Dirent, error) {
	err := driver.checkMounted()
	if err != nil {
		return Dirent{}, err
	}

	snapshot, index, err := driver.lookup(dir, name)
	if err != nil {
		return Dirent{}, err
	}

	dirent := NewDirentFromRaw(snapshot.entry(index))
	if name == ".." {
		return driver.resolveParent(dirent)
	}
	return dirent, nil
}

// ReadFile returns the contents of the file `name` in `dir`. The length of the
// returned slice is the size of the file; its capacity is the space allocated
// to it on disk.
func (driver *Driver) ReadFile(dir Dirent, name string) ([]byte, error) {
	err := driver.checkMounted()
	if err != nil {
		return nil, err
	}

	dirent, err := driver.Stat(dir, name)
	if err != nil {
		return nil, err
	}
	if dirent.IsDir() {
		return nil, sdfat.ErrIsADirectory.WithMessage(
			fmt.Sprintf("can't read %q", name))
	}

	if dirent.FirstCluster == 0 {
		if dirent.size != 0 {
			return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("%q has %d bytes but no clusters", name, dirent.size))
		}
		return []byte{}, nil
	}

	data, err := driver.readChain(dirent.FirstCluster)
	if err != nil {
		return nil, err
	}
	if uint64(dirent.size) > uint64(len(data)) {
		return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"%q is %d bytes but only %d bytes are allocated to it",
				name,
				dirent.size,
				len(data)))
	}
	return data[:dirent.size], nil
}

// Create adds an empty file or directory named `name` to `dir`, and returns its
// entry. New directories get one cluster holding . and .. entries.
func (driver *Driver) Create(dir Dirent, name string, isDir bool) (Dirent, error) {
	err := driver.checkMounted()
	if err != nil {
		return Dirent{}, err
	}

	rawName, err := EncodeShortName(name)
	if err != nil {
		return Dirent{}, err
	}

	snapshot, err := driver.loadDirectory(dir)
	if err != nil {
		return Dirent{}, err
	}
	if snapshot.find(rawName) >= 0 {
		return Dirent{}, sdfat.ErrExists.WithMessage(
			fmt.Sprintf("%q already exists in %q", name, dir.Name()))
	}

	raw := RawDirent{Name: rawName}
	if isDir {
		raw.AttributeFlags = AttrDirectory
	}
	raw.stampCreated(driver.clock())

	if isDir {
		cluster, err := driver.createDirectoryCluster(snapshot.cluster, raw)
		if err != nil {
			return Dirent{}, err
		}
		raw.SetFirstCluster(cluster)
	}

	slot := driver.allocateSlot(snapshot)
	snapshot.claimSlot(slot, raw)
	err = driver.storeDirectory(snapshot)
	if err != nil {
		if raw.FirstCluster() != 0 {
			// Give back the new directory's cluster; if that fails too it's
			// only a lost cluster.
			_, _ = driver.writeChain(raw.FirstCluster(), nil)
		}
		return Dirent{}, err
	}

	driver.log.WithFields(log.Fields{
		"name":      name,
		"directory": isDir,
		"slot":      slot,
		"cluster":   raw.FirstCluster(),
	}).Debug("created entry")
	return NewDirentFromRaw(raw), nil
}

// createDirectoryCluster allocates and writes the first cluster of a new
// directory, holding its . and .. entries.
func (driver *Driver) createDirectoryCluster(
	parentCluster ClusterID, template RawDirent,
) (ClusterID, error) {
	if parentCluster == driver.geometry.RootCluster {
		parentCluster = 0
	}

	// writeChain allocates new chains starting from the first free cluster, so
	// this is the cluster the directory will end up in.
	cluster, err := driver.table.FindFreeCluster(firstAllocatableCluster)
	if err != nil {
		return 0, err
	}

	dot := template
	dot.Name = dotName
	dot.SetFirstCluster(cluster)
	dotDot := template
	dotDot.Name = dotDotName
	dotDot.SetFirstCluster(parentCluster)

	contents := make([]byte, driver.clusters.BytesPerCluster())
	copy(contents[0:], dot.Bytes())
	copy(contents[DirentSize:], dotDot.Bytes())

	start, err := driver.writeChain(0, contents)
	if err != nil {
		return 0, err
	}
	if start != cluster {
		return 0, sdfat.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("new directory landed in cluster %d instead of %d", start, cluster))
	}
	return cluster, nil
}

// WriteFile replaces the contents of the existing file `name` in `dir` with
// `data`. The file's chain grows or shrinks as needed; writing zero bytes frees
// all of its clusters.
func (driver *Driver) WriteFile(dir Dirent, name string, data []byte) error {
	err := driver.checkMounted()
	if err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("%d bytes is too big for a FAT32 file", len(data)))
	}

	snapshot, index, err := driver.lookup(dir, name)
	if err != nil {
		return err
	}

	raw := snapshot.entry(index)
	if raw.IsDirectory() {
		return sdfat.ErrIsADirectory.WithMessage(fmt.Sprintf("can't write to %q", name))
	}

	start, err := driver.writeChain(raw.FirstCluster(), data)
	if err != nil {
		return err
	}

	raw.SetFirstCluster(start)
	raw.FileSize = uint32(len(data))
	raw.stampModified(driver.clock())
	snapshot.setEntry(index, raw)

	driver.log.WithFields(log.Fields{
		"name":    name,
		"bytes":   len(data),
		"cluster": start,
	}).Debug("wrote file")
	return driver.storeDirectory(snapshot)
}

// Truncate changes the size of the file `name` in `dir` to `length` bytes.
// Growing a file pads it with zeros; shrinking it frees the clusters that are
// no longer needed. Truncating to the current size changes nothing on disk.
func (driver *Driver) Truncate(dir Dirent, name string, length uint32) error {
	err := driver.checkMounted()
	if err != nil {
		return err
	}

	snapshot, index, err := driver.lookup(dir, name)
	if err != nil {
		return err
	}

	raw := snapshot.entry(index)
	if raw.IsDirectory() {
		return sdfat.ErrIsADirectory.WithMessage(fmt.Sprintf("can't truncate %q", name))
	}

	if raw.FileSize == length {
		driver.log.WithField("name", name).Debug("truncate to same size, nothing to do")
		return nil
	}

	if length > raw.FileSize {
		contents, err := driver.ReadFile(dir, name)
		if err != nil {
			return err
		}
		padded := make([]byte, length)
		copy(padded, contents)
		return driver.WriteFile(dir, name, padded)
	}

	bytesPerCluster := uint64(driver.clusters.BytesPerCluster())
	keep := int((uint64(length) + bytesPerCluster - 1) / bytesPerCluster)
	start, err := driver.truncateChain(raw.FirstCluster(), keep)
	if err != nil {
		return err
	}

	raw.SetFirstCluster(start)
	raw.FileSize = length
	raw.stampModified(driver.clock())
	snapshot.setEntry(index, raw)
	return driver.storeDirectory(snapshot)
}

// Rename changes the name of `oldName` in `dir` to `newName`. If a file named
// `newName` already exists it is deleted first.
//
//   - Renaming an entry to its own name does nothing.
//   - If `newName` is a directory, this fails with [sdfat.ErrIsADirectory].
//   - If `oldName` is a directory and `newName` an existing file, this fails
//     with [sdfat.ErrNotADirectory].
func (driver *Driver) Rename(dir Dirent, oldName, newName string) error {
	err := driver.checkMounted()
	if err != nil {
		return err
	}

	newRawName, err := EncodeShortName(newName)
	if err != nil {
		return err
	}

	snapshot, index, err := driver.lookup(dir, oldName)
	if err != nil {
		return err
	}

	source := snapshot.entry(index)
	if source.IsDotEntry() {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("can't rename %q", oldName))
	}
	if source.Name == newRawName {
		return nil
	}

	destIndex := snapshot.find(newRawName)
	if destIndex >= 0 {
		dest := snapshot.entry(destIndex)
		if dest.IsDirectory() {
			return sdfat.ErrIsADirectory.WithMessage(
				fmt.Sprintf("can't replace directory %q", newName))
		}
		if source.IsDirectory() {
			return sdfat.ErrNotADirectory.WithMessage(
				fmt.Sprintf("can't replace file %q with a directory", newName))
		}

		driver.log.WithField("name", newName).Debug("rename replaces existing file")
		err = driver.Delete(dir, newName)
		if err != nil {
			return err
		}

		// Deleting wrote the directory back, so start over from what's on disk.
		snapshot, index, err = driver.lookup(dir, oldName)
		if err != nil {
			return err
		}
		source = snapshot.entry(index)
	}

	source.Name = newRawName
	snapshot.setEntry(index, source)

	driver.log.WithFields(log.Fields{
		"from": oldName,
		"to":   newName,
	}).Debug("renamed entry")
	return driver.storeDirectory(snapshot)
}

// Delete removes the file or empty directory `name` from `dir` and frees its
// clusters.
func (driver *Driver) Delete(dir Dirent, name string) error {
	err := driver.checkMounted()
	if err != nil {
		return err
	}

	snapshot, index, err := driver.lookup(dir, name)
	if err != nil {
		return err
	}

	raw := snapshot.entry(index)
	if raw.IsDotEntry() {
		return sdfat.ErrInvalidArgument.WithMessage(fmt.Sprintf("can't delete %q", name))
	}

	if raw.IsDirectory() {
		child, err := driver.loadDirectory(NewDirentFromRaw(raw))
		if err != nil {
			return err
		}
		if child.hasChildren() {
			return sdfat.ErrDirectoryNotEmpty.WithMessage(
				fmt.Sprintf("can't delete %q", name))
		}
	}

	// The entry goes first so that a crash in between leaves lost clusters
	// rather than an entry pointing at free ones.
	snapshot.data[index*DirentSize] = freeMarker
	err = driver.storeDirectory(snapshot)
	if err != nil {
		return err
	}

	if raw.FirstCluster() != 0 {
		_, err = driver.writeChain(raw.FirstCluster(), nil)
		if err != nil {
			return err
		}
	}

	driver.log.WithFields(log.Fields{
		"name":    name,
		"cluster": raw.FirstCluster(),
	}).Debug("deleted entry")
	return nil
}

// Flush writes the FAT and updates the free cluster count and allocation hint
// in the FSInfo sector. The FAT is already written whenever it changes, so
// this is only needed to keep the FSInfo hints accurate.
func (driver *Driver) Flush() error {
	err := driver.checkMounted()
	if err != nil {
		return err
	}

	err = driver.flushTable()
	if err != nil {
		return err
	}

	nextFree, err := driver.table.FindFreeCluster(firstAllocatableCluster)
	if err != nil {
		nextFree = 0xFFFFFFFF
	}
	driver.fsInfo.FreeCount = driver.table.CountFree()
	driver.fsInfo.NextFree = uint32(nextFree)

	sector, err := driver.fsInfo.Bytes(driver.device.SectorSize())
	if err != nil {
		return err
	}
	return driver.device.WriteSectors(driver.geometry.FSInfoLBA, sector)
}

// VolumeStats summarizes the space on the volume.
type VolumeStats struct {
	BytesPerCluster uint
	TotalClusters   uint32
	FreeClusters    uint32
	// FSInfoFreeCount is the free count recorded in the FSInfo sector, which
	// may be stale. 0xFFFFFFFF means unknown.
	FSInfoFreeCount uint32
}

// Stats counts the free clusters on the volume.
func (driver *Driver) Stats() (VolumeStats, error) {
	err := driver.checkMounted()
	if err != nil {
		return VolumeStats{}, err
	}
	return VolumeStats{
		BytesPerCluster: driver.geometry.BytesPerCluster(),
		TotalClusters:   driver.table.Len() - 2,
		FreeClusters:    driver.table.CountFree(),
		FSInfoFreeCount: driver.fsInfo.FreeCount,
	}, nil
}
