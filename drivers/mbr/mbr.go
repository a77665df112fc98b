// Package mbr locates FAT32 volumes in an MBR partition table, and writes the
// single-partition tables used for new disk images.
package mbr

import (
	"fmt"

	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/diskfs/go-diskfs/util"
	"github.com/sdfat/sdfat"
)

const sectorSize = 512

// MaxPartitions is the number of primary partitions in an MBR.
const MaxPartitions = 4

// Partition describes one primary partition.
type Partition struct {
	Index    int
	Type     mbr.Type
	Bootable bool
	StartLBA uint32
	Sectors  uint32
}

// IsFAT32 is true for the two partition types used for FAT32 volumes.
func IsFAT32(partitionType mbr.Type) bool {
	return partitionType == mbr.Fat32CHS || partitionType == mbr.Fat32LBA
}

// IsFAT32 is true if the partition claims to hold a FAT32 volume.
func (p Partition) IsFAT32() bool {
	return IsFAT32(p.Type)
}

// ReadPartitions returns all four primary partitions of the disk in `file`,
// including empty ones.
func ReadPartitions(file util.File) ([]Partition, error) {
	table, err := mbr.Read(file, sectorSize, sectorSize)
	if err != nil {
		return nil, sdfat.ErrInvalidFileSystem.Wrap(err)
	}

	partitions := make([]Partition, 0, len(table.Partitions))
	for i, entry := range table.Partitions {
		partitions = append(
			partitions,
			Partition{
				Index:    i,
				Type:     entry.Type,
				Bootable: entry.Bootable,
				StartLBA: entry.Start,
				Sectors:  entry.Size,
			})
	}
	return partitions, nil
}

// ReadPartition returns the primary partition at `index` (0-3).
func ReadPartition(file util.File, index int) (Partition, error) {
	if index < 0 || index >= MaxPartitions {
		return Partition{}, sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf("partition index must be in [0, %d), got %d", MaxPartitions, index))
	}

	partitions, err := ReadPartitions(file)
	if err != nil {
		return Partition{}, err
	}
	if index >= len(partitions) || partitions[index].Type == mbr.Empty {
		return Partition{}, sdfat.ErrNotFound.WithMessage(
			fmt.Sprintf("partition %d is empty", index))
	}
	return partitions[index], nil
}

// FindFAT32 returns the first primary partition with a FAT32 type.
func FindFAT32(file util.File) (Partition, error) {
	partitions, err := ReadPartitions(file)
	if err != nil {
		return Partition{}, err
	}
	for _, partition := range partitions {
		if partition.IsFAT32() && partition.Sectors > 0 {
			return partition, nil
		}
	}
	return Partition{}, sdfat.ErrNotFound.WithMessage("no FAT32 partition in MBR")
}

// WriteSinglePartitionTable writes an MBR with one bootable FAT32 (LBA)
// partition covering `sectors` sectors from `startLBA`. The boot code area of
// the first sector is left alone.
func WriteSinglePartitionTable(file util.File, startLBA, sectors uint32) error {
	if startLBA == 0 {
		return sdfat.ErrInvalidArgument.WithMessage("partition can't start at the MBR")
	}

	table := &mbr.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		Partitions: []*mbr.Partition{
			{
				Bootable: true,
				Type:     mbr.Fat32LBA,
				Start:    startLBA,
				Size:     sectors,
			},
		},
	}

	err := table.Write(file, int64(startLBA+sectors)*sectorSize)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(err)
	}
	return nil
}
