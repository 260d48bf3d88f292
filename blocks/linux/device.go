// +build linux

package linux

import (
	"os"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	blocks "machinerun.io/blockconv"
)

// cacheTTL is long enough to span a single conversion command but
// never survives a reset_size invalidation (it's keyed out, not
// expired, on ResetSize).
const cacheTTL = 10 * time.Minute

// Device is the linux implementation of blocks.Device: a path under
// /dev, memoizing every value probed from sysfs/blkid per instance.
// Two Device values for the same path never share a cache, matching
// the per-Device-ownership requirement.
type Device struct {
	path  string
	cache *cache.Cache
}

// NewDevice returns a Device for devPath.
func NewDevice(devPath string) *Device {
	return &Device{
		path:  devPath,
		cache: cache.New(cacheTTL, 2*cacheTTL),
	}
}

func (d *Device) Path() string { return d.path }

func (d *Device) Size() (uint64, error) {
	if v, ok := d.cache.Get("size"); ok {
		return v.(uint64), nil
	}

	f, err := os.Open(d.path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", d.path)
	}
	defer f.Close()

	size, err := fileSize(f)
	if err != nil {
		return 0, err
	}

	d.cache.Set("size", size, cache.DefaultExpiration)

	return size, nil
}

func (d *Device) ResetSize() {
	d.cache.Delete("size")
	d.cache.Delete("sbtype")
}

func (d *Device) SuperblockType() (string, error) {
	if v, ok := d.cache.Get("sbtype"); ok {
		return v.(string), nil
	}

	sbtype, err := superblockType(d.path)
	if err != nil {
		return "", err
	}

	d.cache.Set("sbtype", sbtype, cache.DefaultExpiration)

	return sbtype, nil
}

func (d *Device) SuperblockAt(offset uint64) (string, error) {
	return superblockAt(d.path, offset)
}

func (d *Device) HasBcacheSuperblock() (bool, error) {
	size, err := d.Size()
	if err != nil {
		return false, err
	}

	if size <= 8192 {
		return false, nil
	}

	f, err := os.Open(d.path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	return hasBcacheSuperblockAt(f, 0)
}

func (d *Device) Sysfspath() (string, error) {
	if v, ok := d.cache.Get("syspath"); ok {
		return v.(string), nil
	}

	syspath, err := sysPathForDevice(d.path)
	if err != nil {
		return "", err
	}

	d.cache.Set("syspath", syspath, cache.DefaultExpiration)

	return syspath, nil
}

func (d *Device) IterHolders() ([]string, error) {
	return iterHolders(d.path)
}

func (d *Device) IsPartition() (bool, error) {
	return isPartition(d.path)
}

func (d *Device) IsLV() (bool, error) {
	return isLV(d.path)
}

func (d *Device) DevNum() (int, int, error) {
	if v, ok := d.cache.Get("devnum"); ok {
		pair := v.([2]int)
		return pair[0], pair[1], nil
	}

	major, minor, err := devnum(d.path)
	if err != nil {
		return 0, 0, err
	}

	d.cache.Set("devnum", [2]int{major, minor}, cache.DefaultExpiration)

	return major, minor, nil
}

// File opens the underlying device for exclusive read/write access,
// per §3's O_EXCL|O_SYNC|O_RDWR discipline, and returns it as a
// blocks.PhysicalWriter.
func (d *Device) File() (*os.File, error) {
	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_SYNC|os.O_EXCL, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to exclusively open %s", d.path)
	}

	return f, nil
}

var _ blocks.Device = (*Device)(nil)
