package fat32

import (
	"testing"

	"github.com/sdfat/sdfat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTable creates a table of `length` entries with the two reserved
// entries filled in.
func newTestTable(length uint32) *Table {
	entries := make([]uint32, length)
	entries[0] = 0x0FFFFFF8
	entries[1] = EndOfChainValue
	return NewTable(entries, length)
}

func TestTable__Classify(t *testing.T) {
	table := newTestTable(100)

	assert.Equal(t, FreeCluster, table.Classify(0))
	assert.Equal(t, ReservedCluster, table.Classify(1))
	assert.Equal(t, UsedCluster, table.Classify(2))
	assert.Equal(t, UsedCluster, table.Classify(99))
	assert.Equal(t, InvalidCluster, table.Classify(100), "link past the end of the table")
	assert.Equal(t, BadCluster, table.Classify(BadClusterValue))
	assert.Equal(t, LastCluster, table.Classify(0x0FFFFFF8))
	assert.Equal(t, LastCluster, table.Classify(EndOfChainValue))
	assert.Equal(t, LastCluster, table.Classify(0xFFFFFFFF), "high bits must be ignored")
	assert.Equal(t, FreeCluster, table.Classify(0xF0000000), "high bits must be ignored")
}

func TestTable__SetPreservesReservedBits(t *testing.T) {
	entries := make([]uint32, 16)
	entries[5] = 0xA0000000
	table := NewTable(entries, 16)

	require.NoError(t, table.Set(5, 0xFFFFFFFF))
	assert.EqualValues(t, 0xAFFFFFFF, entries[5])
	assert.EqualValues(t, EndOfChainValue, table.Get(5))

	require.NoError(t, table.Set(5, 7))
	assert.EqualValues(t, 0xA0000007, entries[5])
	assert.EqualValues(t, 7, table.Get(5))
}

func TestTable__SetOutOfRange(t *testing.T) {
	table := newTestTable(16)

	assert.ErrorIs(t, table.Set(0, 5), sdfat.ErrArgumentOutOfRange)
	assert.ErrorIs(t, table.Set(1, 5), sdfat.ErrArgumentOutOfRange)
	assert.ErrorIs(t, table.Set(16, 5), sdfat.ErrArgumentOutOfRange)
	assert.NoError(t, table.Set(15, 5))
}

func TestTable__UsableLengthHidesPadding(t *testing.T) {
	entries := make([]uint32, 128)
	table := NewTable(entries, 10)

	assert.EqualValues(t, 10, table.Len())
	assert.EqualValues(t, 7, table.CountFree())
	assert.EqualValues(t, 7, table.CountAllocatable())
	assert.Len(t, table.Bytes(), 128*4, "padding entries must still be written back")

	for i := 0; i < 7; i++ {
		cluster, err := table.FindFreeCluster(2)
		require.NoError(t, err)
		require.Less(t, uint32(cluster), uint32(10))
		require.NoError(t, table.Set(cluster, EndOfChainValue))
	}
	_, err := table.FindFreeCluster(2)
	assert.ErrorIs(t, err, sdfat.ErrNoSpaceOnDevice)
}

func TestTable__DecodeTable(t *testing.T) {
	raw := []byte{
		0xF8, 0xFF, 0xFF, 0x0F,
		0xFF, 0xFF, 0xFF, 0x0F,
		0x03, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	table := DecodeTable(raw, 4)

	assert.EqualValues(t, 3, table.Get(2))
	assert.EqualValues(t, EndOfChainValue, table.Get(3))
	assert.Equal(t, raw, table.Bytes())
}

func TestTable__ListClusters(t *testing.T) {
	table := newTestTable(16)
	require.NoError(t, table.Set(2, 5))
	require.NoError(t, table.Set(5, 3))
	require.NoError(t, table.Set(3, 0x0FFFFFF8))

	clusters, err := table.ListClusters(2)
	require.NoError(t, err)
	assert.Equal(t, []ClusterID{2, 5, 3}, clusters)

	length, err := table.ChainLength(5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, length)
}

func TestTable__ListClustersEmptyChain(t *testing.T) {
	table := newTestTable(16)
	clusters, err := table.ListClusters(0)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}

func TestTable__ListClustersCycle(t *testing.T) {
	table := newTestTable(16)
	require.NoError(t, table.Set(2, 3))
	require.NoError(t, table.Set(3, 4))
	require.NoError(t, table.Set(4, 2))

	_, err := table.ListClusters(2)
	assert.ErrorIs(t, err, sdfat.ErrFileSystemCorrupted)
}

func TestTable__ListClustersBrokenLinks(t *testing.T) {
	table := newTestTable(16)
	require.NoError(t, table.Set(2, 3)) // 3 is free
	require.NoError(t, table.Set(4, BadClusterValue))
	require.NoError(t, table.Set(5, 1))

	for _, start := range []ClusterID{2, 4, 5, 1, 16} {
		_, err := table.ListClusters(start)
		assert.ErrorIsf(t, err, sdfat.ErrFileSystemCorrupted, "chain starting at %d", start)
	}
}

func TestTable__FindFreeClusterWrapsAround(t *testing.T) {
	table := newTestTable(8)
	for cluster := ClusterID(2); cluster < 8; cluster++ {
		require.NoError(t, table.Set(cluster, EndOfChainValue))
	}
	require.NoError(t, table.Set(3, FreeClusterValue))

	cluster, err := table.FindFreeCluster(6)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cluster)

	cluster, err = table.FindFreeCluster(0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cluster, "hints below 3 start at cluster 3")
}

func TestTable__FindFreeClusterSkipsClusterTwo(t *testing.T) {
	table := newTestTable(8)
	for cluster := ClusterID(3); cluster < 8; cluster++ {
		require.NoError(t, table.Set(cluster, EndOfChainValue))
	}
	require.NoError(t, table.Set(4, FreeClusterValue))
	require.Equal(t, FreeCluster, table.TypeOf(2))

	for _, hint := range []ClusterID{0, 1, 2, 3, 5, 7, 100} {
		cluster, err := table.FindFreeCluster(hint)
		require.NoError(t, err)
		assert.EqualValues(t, 4, cluster, "hint %d", hint)
	}

	require.NoError(t, table.Set(4, EndOfChainValue))
	_, err := table.FindFreeCluster(0)
	assert.ErrorIs(t, err, sdfat.ErrNoSpaceOnDevice, "cluster 2 is free but never returned")
	assert.EqualValues(t, 0, table.CountFree())
}

func TestTable__CloneIsIndependent(t *testing.T) {
	table := newTestTable(8)
	clone := table.Clone()

	require.NoError(t, clone.Set(2, EndOfChainValue))
	assert.Equal(t, FreeCluster, table.TypeOf(2))
	assert.Equal(t, LastCluster, clone.TypeOf(2))
}
