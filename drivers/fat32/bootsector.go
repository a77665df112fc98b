// Package fat32 implements a read/write driver for FAT32 volumes on a device
// that can only be accessed in whole sectors.
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
)

type ClusterID = c.ClusterID

const (
	bootSignatureOffset = 510
	fsInfoLeadSignature = 0x41615252
	fsInfoStructSig     = 0x61417272
	fsInfoTrailSig      = 0xAA550000
	extendedBootSig     = 0x29
)

// RawBootSector is the on-disk representation of the FAT32 boot sector up to
// the end of the extended BIOS parameter block. Offsets are relative to the
// start of the sector.
type RawBootSector struct {
	JmpBoot           [3]byte  // 0
	OEMName           [8]byte  // 3
	BytesPerSector    uint16   // 11
	SectorsPerCluster uint8    // 13
	ReservedSectors   uint16   // 14
	NumFATs           uint8    // 16
	RootEntryCount    uint16   // 17
	TotalSectors16    uint16   // 19
	Media             uint8    // 21
	SectorsPerFAT16   uint16   // 22
	SectorsPerTrack   uint16   // 24
	NumHeads          uint16   // 26
	HiddenSectors     uint32   // 28
	TotalSectors32    uint32   // 32
	SectorsPerFAT32   uint32   // 36
	ExtFlags          uint16   // 40
	FSVersion         uint16   // 42
	RootCluster       uint32   // 44
	FSInfoSector      uint16   // 48
	BackupBootSector  uint16   // 50
	Reserved          [12]byte // 52
	DriveNumber       uint8    // 64
	Reserved1         uint8    // 65
	BootSignature     uint8    // 66
	VolumeID          uint32   // 67
	VolumeLabel       [11]byte // 71
	FileSystemType    [8]byte  // 82
}

// RawFSInfo is the on-disk representation of the FSInfo sector.
type RawFSInfo struct {
	LeadSignature   uint32
	Reserved1       [480]byte
	StructSignature uint32
	FreeCount       uint32
	NextFree        uint32
	Reserved2       [12]byte
	TrailSignature  uint32
}

// TotalSectors gives the number of sectors in the volume, regardless of which
// of the two fields holds it.
func (boot *RawBootSector) TotalSectors() uint32 {
	if boot.TotalSectors16 != 0 {
		return uint32(boot.TotalSectors16)
	}
	return boot.TotalSectors32
}

// ReadBootSector reads and validates the boot sector stored at `lba`.
func ReadBootSector(device sdfat.BlockDevice, lba uint32) (*RawBootSector, error) {
	sector, err := device.ReadSectors(lba, 1)
	if err != nil {
		return nil, err
	}
	return ParseBootSector(sector, device.SectorSize())
}

// ParseBootSector decodes a boot sector and checks that it describes a FAT32
// volume this driver can handle.
func ParseBootSector(sector []byte, deviceSectorSize uint) (*RawBootSector, error) {
	if len(sector) < 512 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("boot sector is only %d bytes", len(sector)))
	}
	if sector[bootSignatureOffset] != 0x55 || sector[bootSignatureOffset+1] != 0xAA {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"bad boot sector signature: expected 55 AA, got %02X %02X",
				sector[bootSignatureOffset],
				sector[bootSignatureOffset+1]))
	}

	boot := RawBootSector{}
	err := binary.Read(bytes.NewReader(sector), binary.LittleEndian, &boot)
	if err != nil {
		return nil, sdfat.ErrInvalidFileSystem.Wrap(err)
	}

	switch boot.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"bad value for BytesPerSector: need 512, 1024, 2048, or 4096, got %d",
				boot.BytesPerSector))
	}
	if uint(boot.BytesPerSector) != deviceSectorSize {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"volume has %d-byte sectors but the device has %d-byte sectors",
				boot.BytesPerSector,
				deviceSectorSize))
	}

	switch boot.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"SectorsPerCluster must be a power of 2 in 1-128, got %d",
				boot.SectorsPerCluster))
	}

	if boot.NumFATs == 0 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage("volume has no FATs")
	}
	if boot.ReservedSectors == 0 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage("ReservedSectors can't be 0")
	}
	if boot.SectorsPerFAT16 != 0 || boot.SectorsPerFAT32 == 0 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			"not a FAT32 volume: sectors per FAT is stored in the FAT12/16 field")
	}
	if boot.RootEntryCount != 0 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"not a FAT32 volume: fixed root directory has %d entries",
				boot.RootEntryCount))
	}
	if boot.RootCluster < 2 {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("invalid root directory cluster %d", boot.RootCluster))
	}
	if boot.FSInfoSector == 0 || boot.FSInfoSector == 0xFFFF ||
		boot.FSInfoSector >= boot.ReservedSectors {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("invalid FSInfo sector number %d", boot.FSInfoSector))
	}

	metadataSectors := uint64(boot.ReservedSectors) +
		uint64(boot.NumFATs)*uint64(boot.SectorsPerFAT32)
	if uint64(boot.TotalSectors()) <= metadataSectors {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"volume of %d sectors has no room for data after %d metadata sectors",
				boot.TotalSectors(),
				metadataSectors))
	}

	return &boot, nil
}

// Bytes serializes the boot sector into a full sector of `sectorSize` bytes,
// including the trailing 55 AA signature.
func (boot *RawBootSector) Bytes(sectorSize uint) ([]byte, error) {
	sector := make([]byte, sectorSize)
	err := binary.Write(bytewriter.New(sector), binary.LittleEndian, boot)
	if err != nil {
		return nil, sdfat.ErrInvalidArgument.Wrap(err)
	}
	sector[bootSignatureOffset] = 0x55
	sector[bootSignatureOffset+1] = 0xAA
	return sector, nil
}

// ReadFSInfo reads and validates the FSInfo sector stored at `lba`.
func ReadFSInfo(device sdfat.BlockDevice, lba uint32) (*RawFSInfo, error) {
	sector, err := device.ReadSectors(lba, 1)
	if err != nil {
		return nil, err
	}

	info := RawFSInfo{}
	err = binary.Read(bytes.NewReader(sector), binary.LittleEndian, &info)
	if err != nil {
		return nil, sdfat.ErrInvalidFileSystem.Wrap(err)
	}

	if info.LeadSignature != fsInfoLeadSignature ||
		info.StructSignature != fsInfoStructSig ||
		info.TrailSignature != fsInfoTrailSig {
		return nil, sdfat.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"bad FSInfo signatures at sector %d: %08X %08X %08X",
				lba,
				info.LeadSignature,
				info.StructSignature,
				info.TrailSignature))
	}
	return &info, nil
}

// NewFSInfo creates an FSInfo sector with valid signatures.
func NewFSInfo(freeCount, nextFree uint32) *RawFSInfo {
	return &RawFSInfo{
		LeadSignature:   fsInfoLeadSignature,
		StructSignature: fsInfoStructSig,
		FreeCount:       freeCount,
		NextFree:        nextFree,
		TrailSignature:  fsInfoTrailSig,
	}
}

// Bytes serializes the FSInfo structure into a full sector.
func (info *RawFSInfo) Bytes(sectorSize uint) ([]byte, error) {
	sector := make([]byte, sectorSize)
	err := binary.Write(bytewriter.New(sector), binary.LittleEndian, info)
	if err != nil {
		return nil, sdfat.ErrInvalidArgument.Wrap(err)
	}
	return sector, nil
}

////////////////////////////////////////////////////////////////////////////////
// Geometry

// Geometry holds the layout of a mounted volume. It never changes after mount.
type Geometry struct {
	LBAStart          uint32
	FATBeginLBA       uint32
	ClusterBeginLBA   uint32
	BytesPerSector    uint32
	SectorsPerCluster uint32
	SectorsPerFAT     uint32
	NumFATs           uint32
	RootCluster       ClusterID
	// EntriesPerFAT is the number of 32-bit entries that fit in one copy of the
	// FAT.
	EntriesPerFAT uint32
	// TotalClusters is the number of data clusters, i.e. clusters
	// [2, TotalClusters + 2) exist on disk.
	TotalClusters uint32
	FSInfoLBA     uint32
}

// NewGeometry computes the layout of a volume whose boot sector is at
// `lbaStart`.
func NewGeometry(lbaStart uint32, boot *RawBootSector) Geometry {
	fatBegin := lbaStart + uint32(boot.ReservedSectors)
	clusterBegin := fatBegin + uint32(boot.NumFATs)*boot.SectorsPerFAT32
	dataSectors := boot.TotalSectors() - (clusterBegin - lbaStart)

	return Geometry{
		LBAStart:          lbaStart,
		FATBeginLBA:       fatBegin,
		ClusterBeginLBA:   clusterBegin,
		BytesPerSector:    uint32(boot.BytesPerSector),
		SectorsPerCluster: uint32(boot.SectorsPerCluster),
		SectorsPerFAT:     boot.SectorsPerFAT32,
		NumFATs:           uint32(boot.NumFATs),
		RootCluster:       ClusterID(boot.RootCluster),
		EntriesPerFAT:     boot.SectorsPerFAT32 * uint32(boot.BytesPerSector) / 4,
		TotalClusters:     dataSectors / uint32(boot.SectorsPerCluster),
		FSInfoLBA:         lbaStart + uint32(boot.FSInfoSector),
	}
}

// BytesPerCluster gives the size of one cluster, in bytes.
func (geometry Geometry) BytesPerCluster() uint {
	return uint(geometry.BytesPerSector) * uint(geometry.SectorsPerCluster)
}

// UsableEntries is the number of FAT entries that describe a real cluster
// (including the two reserved ones). FATs are often padded past the end of the
// data region and those entries must never be handed out.
func (geometry Geometry) UsableEntries() uint32 {
	if geometry.TotalClusters+2 < geometry.EntriesPerFAT {
		return geometry.TotalClusters + 2
	}
	return geometry.EntriesPerFAT
}

// ClusterToLBA gives the first sector of a data cluster.
func (geometry Geometry) ClusterToLBA(cluster ClusterID) uint32 {
	return geometry.ClusterBeginLBA + (uint32(cluster)-2)*geometry.SectorsPerCluster
}
