package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blocks "machinerun.io/blockconv"
)

// fakeDevice is a no-op blocks.Device, just enough for tests that never
// actually probe a superblock (the fake containers/fs below stand in for
// that).
type fakeDevice struct{ path string }

func (d *fakeDevice) Path() string                        { return d.path }
func (d *fakeDevice) Size() (uint64, error)                { return 0, nil }
func (d *fakeDevice) SuperblockType() (string, error)      { return "", nil }
func (d *fakeDevice) SuperblockAt(uint64) (string, error)  { return "", nil }
func (d *fakeDevice) HasBcacheSuperblock() (bool, error)   { return false, nil }
func (d *fakeDevice) Sysfspath() (string, error)           { return "", nil }
func (d *fakeDevice) IterHolders() ([]string, error)       { return nil, nil }
func (d *fakeDevice) IsPartition() (bool, error)           { return false, nil }
func (d *fakeDevice) IsLV() (bool, error)                  { return false, nil }
func (d *fakeDevice) DevNum() (int, int, error)            { return 0, 0, nil }
func (d *fakeDevice) ResetSize()                           {}

// fakeContainer is a blocks.ContainerAdapter that records the order in
// which Deactivate is called across every instance sharing its *[]string.
type fakeContainer struct {
	name   string
	offset uint64
	order  *[]string
}

func (c *fakeContainer) ReadSuperblock() error           { return nil }
func (c *fakeContainer) Offset() uint64                  { return c.offset }
func (c *fakeContainer) Grow(uint64) error                { return nil }
func (c *fakeContainer) ReserveEndArea(uint64) error       { return nil }
func (c *fakeContainer) CleartextDevice() (blocks.Device, error) {
	return &fakeDevice{path: "/dev/fake-" + c.name}, nil
}
func (c *fakeContainer) Activate(string) error { return nil }
func (c *fakeContainer) Deactivate() error {
	*c.order = append(*c.order, c.name)
	return nil
}

var _ blocks.ContainerAdapter = (*fakeContainer)(nil)

// fakeFs is a minimal blocks.FsAdapter carrying a fixed size.
type fakeFs struct{ size uint64 }

func (f *fakeFs) ReadSuperblock() error        { return nil }
func (f *fakeFs) CanShrink() bool              { return true }
func (f *fakeFs) ResizeNeedsMountPoint() bool  { return false }
func (f *fakeFs) BlockSize() uint64            { return 4096 }
func (f *fakeFs) Fssize() uint64               { return f.size }
func (f *fakeFs) Grow(uint64) error            { return nil }
func (f *fakeFs) ReserveEndArea(uint64) error  { return nil }
func (f *fakeFs) VfsType() string              { return "ext4" }
func (f *fakeFs) Label() string                { return "" }

var _ blocks.FsAdapter = (*fakeFs)(nil)

// TestBlockStackDeactivateReverseOrder is a regression test for the
// teardown-ordering bug: LUKS is Containers[0] (outermost, pushed first
// by Discover), bcache is Containers[1] (innermost, pushed after
// recursing into the LUKS cleartext device). Deactivate must close
// bcache before LUKS, since bcache still holds the dm-crypt mapping
// open.
func TestBlockStackDeactivateReverseOrder(t *testing.T) {
	var order []string

	stack := &blocks.BlockStack{
		Containers: []blocks.ContainerAdapter{
			&fakeContainer{name: "luks", order: &order},
			&fakeContainer{name: "bcache", order: &order},
		},
		Fs: &fakeFs{size: 1024},
	}

	require.NoError(t, stack.Deactivate())

	assert.Equal(t, []string{"bcache", "luks"}, order)
}

func TestBlockStackDeactivateSingleContainer(t *testing.T) {
	var order []string

	stack := &blocks.BlockStack{
		Containers: []blocks.ContainerAdapter{
			&fakeContainer{name: "luks", order: &order},
		},
		Fs: &fakeFs{size: 1024},
	}

	require.NoError(t, stack.Deactivate())

	assert.Equal(t, []string{"luks"}, order)
}

func TestBlockStackTotalDataSize(t *testing.T) {
	stack := &blocks.BlockStack{
		Containers: []blocks.ContainerAdapter{
			&fakeContainer{name: "luks", offset: 2048},
			&fakeContainer{name: "bcache", offset: 512},
		},
		Fs: &fakeFs{size: 100 * 1024},
	}

	assert.Equal(t, 100*1024+2048+512, int(stack.TotalDataSize()))
}
