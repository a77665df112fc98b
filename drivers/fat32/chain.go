package fat32

import (
	"fmt"

	"github.com/sdfat/sdfat"
	c "github.com/sdfat/sdfat/drivers/common"
	"github.com/sdfat/sdfat/drivers/common/blockcache"
	log "github.com/sirupsen/logrus"
)

// chainCache creates a cache whose blocks are the given clusters, in order.
func (driver *Driver) chainCache(clusters []ClusterID) *blockcache.BlockCache {
	fetch := func(index c.LogicalBlock, buffer []byte) error {
		data, err := driver.clusters.Read(clusters[index], 1)
		if err != nil {
			return err
		}
		copy(buffer, data)
		return nil
	}
	flush := func(index c.LogicalBlock, buffer []byte) error {
		driver.log.WithFields(log.Fields{
			"cluster": clusters[index],
			"lba":     driver.geometry.ClusterToLBA(clusters[index]),
		}).Trace("writing cluster")
		return driver.clusters.Write(clusters[index], buffer)
	}

	return blockcache.New(
		driver.clusters.BytesPerCluster(), uint(len(clusters)), fetch, flush)
}

// readChain reads every cluster of the chain starting at `start` into one
// buffer. The buffer's length is always a multiple of the cluster size.
func (driver *Driver) readChain(start ClusterID) ([]byte, error) {
	clusters, err := driver.table.ListClusters(start)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return []byte{}, nil
	}
	return driver.chainCache(clusters).Data()
}

// writeChain stores `data` in the chain starting at `start`, and returns the
// first cluster of the chain afterwards.
//
//   - If `data` needs more clusters than the chain has, free clusters are
//     allocated and linked to the end. `start` may be 0 to allocate a new chain.
//   - If it needs fewer, the last cluster needed becomes the end of the chain
//     and the rest are freed.
//   - If `data` is empty the whole chain is freed, `start` included, and the
//     returned cluster is 0.
//
// The data is written before the FAT, and the FAT is only written if the shape
// of the chain changed.
func (driver *Driver) writeChain(start ClusterID, data []byte) (ClusterID, error) {
	existing, err := driver.table.ListClusters(start)
	if err != nil {
		return 0, err
	}

	bytesPerCluster := uint64(driver.clusters.BytesPerCluster())
	needed := int((uint64(len(data)) + bytesPerCluster - 1) / bytesPerCluster)

	backup := driver.table.Clone()
	clusters, err := driver.resizeChain(existing, needed)
	if err != nil {
		driver.table = backup
		return 0, err
	}

	if len(clusters) > 0 {
		cache := driver.chainCache(clusters)
		err = cache.Write(0, data)
		if err == nil {
			err = cache.Flush()
		}
		if err != nil {
			driver.table = backup
			return 0, err
		}
	}

	if len(clusters) != len(existing) {
		err = driver.flushTable()
		if err != nil {
			return 0, err
		}
	}

	if len(clusters) == 0 {
		return 0, nil
	}
	return clusters[0], nil
}

// resizeChain changes the in-memory FAT so that the chain made of `existing`
// has exactly `needed` clusters, and returns the new list of clusters. Nothing
// is written to disk.
func (driver *Driver) resizeChain(existing []ClusterID, needed int) ([]ClusterID, error) {
	table := driver.table

	if needed < len(existing) {
		for _, cluster := range existing[needed:] {
			err := table.Set(cluster, FreeClusterValue)
			if err != nil {
				return nil, err
			}
		}
		if needed > 0 {
			err := table.Set(existing[needed-1], EndOfChainValue)
			if err != nil {
				return nil, err
			}
		}
		driver.log.WithFields(log.Fields{
			"freed": len(existing) - needed,
			"kept":  needed,
		}).Debug("shrank cluster chain")
		return existing[:needed], nil
	}

	clusters := make([]ClusterID, len(existing), needed)
	copy(clusters, existing)

	hint := ClusterID(firstAllocatableCluster)
	if len(clusters) > 0 {
		hint = clusters[len(clusters)-1] + 1
	}

	for len(clusters) < needed {
		cluster, err := table.FindFreeCluster(hint)
		if err != nil {
			return nil, err
		}
		err = table.Set(cluster, EndOfChainValue)
		if err != nil {
			return nil, err
		}
		if len(clusters) > 0 {
			err = table.Set(clusters[len(clusters)-1], uint32(cluster))
			if err != nil {
				return nil, err
			}
		}
		clusters = append(clusters, cluster)
		hint = cluster + 1
	}

	if needed > len(existing) {
		driver.log.WithFields(log.Fields{
			"added": needed - len(existing),
			"total": needed,
		}).Debug("grew cluster chain")
	}
	return clusters, nil
}

// truncateChain frees every cluster of the chain after the first `keep`. It
// returns the first cluster of the chain, which is 0 if `keep` is 0.
func (driver *Driver) truncateChain(start ClusterID, keep int) (ClusterID, error) {
	existing, err := driver.table.ListClusters(start)
	if err != nil {
		return 0, err
	}
	if keep >= len(existing) {
		return start, nil
	}

	backup := driver.table.Clone()
	clusters, err := driver.resizeChain(existing, keep)
	if err != nil {
		driver.table = backup
		return 0, err
	}

	err = driver.flushTable()
	if err != nil {
		return 0, err
	}
	if len(clusters) == 0 {
		return 0, nil
	}
	return clusters[0], nil
}

// flushTable writes the in-memory FAT to the first FAT copy of the volume.
func (driver *Driver) flushTable() error {
	err := driver.table.Flush(driver.device, driver.geometry)
	if err != nil {
		return sdfat.ErrIOFailed.Wrap(fmt.Errorf("failed to write FAT: %w", err))
	}
	if driver.geometry.NumFATs > 1 {
		driver.log.WithField("copies", driver.geometry.NumFATs-1).
			Debug("FAT written; backup copies left stale")
	}
	return nil
}
