package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/sdfat/sdfat"
)

const (
	// entryMask selects the bits of a FAT entry that hold the cluster value. The
	// upper four bits are reserved and must be preserved on writes.
	entryMask = 0x0FFFFFFF

	FreeClusterValue   = 0x00000000
	BadClusterValue    = 0x0FFFFFF7
	EndOfChainValue    = 0x0FFFFFFF
	endOfChainMinValue = 0x0FFFFFF8

	// firstAllocatableCluster is the lowest cluster FindFreeCluster returns.
	firstAllocatableCluster = 3
)

// EntryType classifies the value stored in a FAT entry.
type EntryType int

const (
	FreeCluster EntryType = iota
	ReservedCluster
	UsedCluster
	BadCluster
	LastCluster
	InvalidCluster
)

func (entryType EntryType) String() string {
	switch entryType {
	case FreeCluster:
		return "free"
	case ReservedCluster:
		return "reserved"
	case UsedCluster:
		return "used"
	case BadCluster:
		return "bad"
	case LastCluster:
		return "last"
	default:
		return "invalid"
	}
}

// Table is the in-memory copy of the first FAT. Entry N describes cluster N;
// entries 0 and 1 are reserved.
type Table struct {
	entries []uint32
	length  uint32
}

// NewTable wraps a slice of raw FAT entries. Only the first `usable` entries
// are considered part of the volume; the rest are kept so that flushing the
// table writes back exactly what was read.
func NewTable(entries []uint32, usable uint32) *Table {
	if usable > uint32(len(entries)) {
		usable = uint32(len(entries))
	}
	return &Table{entries: entries, length: usable}
}

// DecodeTable builds a table out of the raw bytes of one FAT copy.
func DecodeTable(raw []byte, usable uint32) *Table {
	entries := make([]uint32, len(raw)/4)
	for i := range entries {
		entries[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return NewTable(entries, usable)
}

// LoadTable reads the first copy of the FAT of a volume.
func LoadTable(device sdfat.BlockDevice, geometry Geometry) (*Table, error) {
	raw, err := device.ReadSectors(geometry.FATBeginLBA, uint(geometry.SectorsPerFAT))
	if err != nil {
		return nil, err
	}
	return DecodeTable(raw, geometry.UsableEntries()), nil
}

// Flush writes the table to the first FAT copy. Other copies are left alone.
func (table *Table) Flush(device sdfat.BlockDevice, geometry Geometry) error {
	return device.WriteSectors(geometry.FATBeginLBA, table.Bytes())
}

// Bytes encodes the entire table in its on-disk format.
func (table *Table) Bytes() []byte {
	raw := make([]byte, len(table.entries)*4)
	for i, entry := range table.entries {
		binary.LittleEndian.PutUint32(raw[i*4:], entry)
	}
	return raw
}

// Clone returns a deep copy of the table.
func (table *Table) Clone() *Table {
	entries := make([]uint32, len(table.entries))
	copy(entries, table.entries)
	return &Table{entries: entries, length: table.length}
}

// Len gives the number of entries that describe clusters on the volume.
func (table *Table) Len() uint32 {
	return table.length
}

// Get returns the value of the entry for `cluster`, without the reserved bits.
func (table *Table) Get(cluster ClusterID) uint32 {
	if uint32(cluster) >= table.length {
		return EndOfChainValue
	}
	return table.entries[cluster] & entryMask
}

// Classify determines what kind of entry `value` is.
func (table *Table) Classify(value uint32) EntryType {
	value &= entryMask
	switch {
	case value == FreeClusterValue:
		return FreeCluster
	case value == 1:
		return ReservedCluster
	case value >= endOfChainMinValue:
		return LastCluster
	case value == BadClusterValue:
		return BadCluster
	case value < table.length:
		return UsedCluster
	default:
		return InvalidCluster
	}
}

// TypeOf classifies the entry for `cluster`.
func (table *Table) TypeOf(cluster ClusterID) EntryType {
	return table.Classify(table.Get(cluster))
}

// Set stores `value` in the entry for `cluster`. Only the low 28 bits are
// written.
func (table *Table) Set(cluster ClusterID, value uint32) error {
	if cluster < 2 || uint32(cluster) >= table.length {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"can't set FAT entry %d: not in range [2, %d)",
				cluster,
				table.length))
	}
	table.entries[cluster] = (table.entries[cluster] &^ entryMask) | (value & entryMask)
	return nil
}

// ListClusters returns every cluster in the chain beginning at `start`, in
// order. A chain starting at cluster 0 is empty.
//
// The walk is bounded by the size of the table, so a cycle or a link to a free,
// bad or nonexistent cluster returns an error wrapping
// [sdfat.ErrFileSystemCorrupted].
func (table *Table) ListClusters(start ClusterID) ([]ClusterID, error) {
	if start == 0 {
		return []ClusterID{}, nil
	}

	clusters := make([]ClusterID, 0, 8)
	current := start
	for {
		if current < 2 || uint32(current) >= table.length {
			return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"chain starting at %d links to nonexistent cluster %d",
					start,
					current))
		}
		if uint32(len(clusters)) >= table.length {
			return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("chain starting at %d contains a cycle", start))
		}
		clusters = append(clusters, current)

		next := table.Get(current)
		switch table.Classify(next) {
		case LastCluster:
			return clusters, nil
		case UsedCluster:
			current = ClusterID(next)
		default:
			return nil, sdfat.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf(
					"chain starting at %d hits %s entry %08X at cluster %d",
					start,
					table.Classify(next),
					next,
					current))
		}
	}
}

// ChainLength counts the clusters in the chain beginning at `start`, up to and
// including the one marked as the end of the chain.
func (table *Table) ChainLength(start ClusterID) (uint32, error) {
	clusters, err := table.ListClusters(start)
	if err != nil {
		return 0, err
	}
	return uint32(len(clusters)), nil
}

// FindFreeCluster returns the first free cluster at or after `hint`, wrapping
// around to cluster 3 if needed. Cluster 2 is never returned.
func (table *Table) FindFreeCluster(hint ClusterID) (ClusterID, error) {
	if hint < firstAllocatableCluster || uint32(hint) >= table.length {
		hint = firstAllocatableCluster
	}

	for cluster := uint32(hint); cluster < table.length; cluster++ {
		if table.entries[cluster]&entryMask == FreeClusterValue {
			return ClusterID(cluster), nil
		}
	}
	for cluster := uint32(firstAllocatableCluster); cluster < uint32(hint); cluster++ {
		if table.entries[cluster]&entryMask == FreeClusterValue {
			return ClusterID(cluster), nil
		}
	}
	return 0, sdfat.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d clusters are in use", table.CountAllocatable()))
}

// CountFree gives the number of clusters FindFreeCluster can still hand out.
func (table *Table) CountFree() uint32 {
	total := uint32(0)
	for cluster := uint32(firstAllocatableCluster); cluster < table.length; cluster++ {
		if table.entries[cluster]&entryMask == FreeClusterValue {
			total++
		}
	}
	return total
}

// CountAllocatable gives the number of clusters that can ever be allocated.
func (table *Table) CountAllocatable() uint32 {
	if table.length <= firstAllocatableCluster {
		return 0
	}
	return table.length - firstAllocatableCluster
}
