package common

import (
	"fmt"

	"github.com/sdfat/sdfat"
)

// ClusterStream is an abstraction layer for file systems that address their
// data region in groups of multiple sectors ("clusters"), offset from the
// beginning of the disk.
type ClusterStream struct {
	Device            sdfat.BlockDevice
	SectorsPerCluster uint
	// FirstSector is the LBA of the first sector of FirstValidCluster.
	FirstSector       uint32
	FirstValidCluster ClusterID
	LastValidCluster  ClusterID
	bytesPerCluster   uint
}

func NewClusterStream(
	device sdfat.BlockDevice,
	sectorsPerCluster uint,
	firstSector uint32,
	firstValidCluster ClusterID,
	lastValidCluster ClusterID,
) (*ClusterStream, error) {
	if sectorsPerCluster == 0 {
		return nil, sdfat.ErrInvalidArgument.WithMessage("sectors per cluster can't be 0")
	}
	if lastValidCluster < firstValidCluster {
		return nil, sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"empty cluster range [%d, %d]",
				firstValidCluster,
				lastValidCluster))
	}

	return &ClusterStream{
		Device:            device,
		SectorsPerCluster: sectorsPerCluster,
		FirstSector:       firstSector,
		FirstValidCluster: firstValidCluster,
		LastValidCluster:  lastValidCluster,
		bytesPerCluster:   sectorsPerCluster * device.SectorSize(),
	}, nil
}

// BytesPerCluster gives the size of one cluster, in bytes.
func (stream *ClusterStream) BytesPerCluster() uint {
	return stream.bytesPerCluster
}

// ClusterToLBA takes a cluster ID and returns the LBA of the first sector of
// that cluster.
func (stream *ClusterStream) ClusterToLBA(cluster ClusterID) (uint32, error) {
	err := stream.CheckIOBounds(cluster, 0)
	if err != nil {
		return 0, err
	}
	normalizedCluster := uint32(cluster - stream.FirstValidCluster)
	return stream.FirstSector + normalizedCluster*uint32(stream.SectorsPerCluster), nil
}

func (stream *ClusterStream) CheckIOBounds(cluster ClusterID, dataLength uint) error {
	if cluster < stream.FirstValidCluster || cluster > stream.LastValidCluster {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid cluster ID %d: not in range [%d, %d]",
				cluster,
				stream.FirstValidCluster,
				stream.LastValidCluster))
	}

	if dataLength%stream.bytesPerCluster != 0 {
		return sdfat.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"data must be a multiple of the cluster size (%d B), got %d (remainder %d)",
				stream.bytesPerCluster,
				dataLength,
				dataLength%stream.bytesPerCluster))
	}

	clusterCount := dataLength / stream.bytesPerCluster
	if clusterCount > 0 && uint(cluster)+clusterCount-1 > uint(stream.LastValidCluster) {
		return sdfat.ErrArgumentOutOfRange.WithMessage(
			fmt.Sprintf(
				"cluster %d plus %d clusters of data extends past the end of the image",
				cluster,
				clusterCount))
	}

	return nil
}

// Read reads `count` physically contiguous clusters, starting at `cluster`.
func (stream *ClusterStream) Read(cluster ClusterID, count uint) ([]byte, error) {
	err := stream.CheckIOBounds(cluster, count*stream.bytesPerCluster)
	if err != nil {
		return nil, err
	}

	lba, err := stream.ClusterToLBA(cluster)
	if err != nil {
		return nil, err
	}
	return stream.Device.ReadSectors(lba, count*stream.SectorsPerCluster)
}

// Write writes a whole number of clusters starting at `cluster`. The length of
// `data` must be an exact multiple of the cluster size, in bytes.
func (stream *ClusterStream) Write(cluster ClusterID, data []byte) error {
	err := stream.CheckIOBounds(cluster, uint(len(data)))
	if err != nil {
		return err
	}

	lba, err := stream.ClusterToLBA(cluster)
	if err != nil {
		return err
	}
	return stream.Device.WriteSectors(lba, data)
}
