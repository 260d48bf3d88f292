package blocks

import "github.com/pkg/errors"

// BlockStack is the ordered composition of zero or more ContainerAdapters
// terminating in exactly one FsAdapter (the topmost, innermost-resizable
// entity). LVM is not represented as a stack layer here: it is the
// carrier of the stack rather than a composable container, though its PE
// alignment still contributes overhead during conversion (see
// LvmInjector/BcacheInjector).
type BlockStack struct {
	Containers []ContainerAdapter
	Fs         FsAdapter
}

// ContainerFactory constructs the ContainerAdapter for a recognized
// container superblock kind ("crypto_LUKS" or "bcache") wrapping dev.
type ContainerFactory func(kind string, dev Device) (ContainerAdapter, error)

// FsFactory constructs the FsAdapter for a recognized filesystem
// superblock kind wrapping dev.
type FsFactory func(kind string, dev Device) (FsAdapter, error)

var knownFilesystems = map[string]bool{
	"ext2": true, "ext3": true, "ext4": true,
	"xfs": true, "btrfs": true, "reiserfs": true,
	"nilfs2": true, "swap": true,
}

// Discover builds a BlockStack by probing dev and recursing through any
// LUKS/bcache containers found, per spec:
//  1. start with dev.
//  2. if its superblock is crypto_LUKS, push a LUKS container and recurse
//     into its cleartext device.
//  3. else if it carries a bcache superblock, push a BcacheBacking
//     container (requiring it to be a "backing" device) and recurse into
//     its cached device.
//  4. else if the superblock is a known filesystem, push the matching
//     FsAdapter and stop.
//  5. else fail with ErrUnsupportedSuperblock.
func Discover(dev Device, newContainer ContainerFactory, newFs FsFactory) (*BlockStack, error) {
	stack := &BlockStack{}
	cur := dev

	for {
		sbtype, err := cur.SuperblockType()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to probe %s", cur.Path())
		}

		switch {
		case sbtype == "crypto_LUKS":
			c, err := newContainer("crypto_LUKS", cur)
			if err != nil {
				return nil, err
			}

			if err := c.ReadSuperblock(); err != nil {
				return nil, err
			}

			stack.Containers = append(stack.Containers, c)

			cur, err = c.CleartextDevice()
			if err != nil {
				return nil, err
			}

		case sbtype != "" && sbtype != "bcache":
			if !knownFilesystems[sbtype] {
				return nil, UnsupportedSuperblockError(cur.Path(), sbtype)
			}

			fs, err := newFs(sbtype, cur)
			if err != nil {
				return nil, err
			}

			if err := fs.ReadSuperblock(); err != nil {
				return nil, err
			}

			stack.Fs = fs

			return stack, nil

		default:
			hasBcache, err := cur.HasBcacheSuperblock()
			if err != nil {
				return nil, err
			}

			if !hasBcache {
				return nil, UnsupportedSuperblockError(cur.Path(), "none")
			}

			c, err := newContainer("bcache", cur)
			if err != nil {
				return nil, err
			}

			if err := c.ReadSuperblock(); err != nil {
				return nil, err
			}

			stack.Containers = append(stack.Containers, c)

			cur, err = c.CleartextDevice()
			if err != nil {
				return nil, err
			}
		}
	}
}

// ReadSuperblocks refreshes every element of the stack.
func (s *BlockStack) ReadSuperblocks() error {
	for _, c := range s.Containers {
		if err := c.ReadSuperblock(); err != nil {
			return err
		}
	}

	return s.Fs.ReadSuperblock()
}

// TotalDataSize returns the topmost filesystem's size plus the overhead
// of every container layer, i.e. the number of bytes of the underlying
// device this stack occupies from offset 0.
func (s *BlockStack) TotalDataSize() uint64 {
	total := s.Fs.Fssize()

	for _, c := range s.Containers {
		total += c.Offset()
	}

	return total
}

// StackResize resizes every layer of the stack so the whole occupies pos
// bytes of the underlying device, growing outer-to-inner or shrinking
// inner-to-outer as shrink indicates.
func (s *BlockStack) StackResize(pos uint64, shrink bool) error {
	if shrink {
		return s.stackReserveEndArea(pos)
	}

	return s.stackGrow(pos)
}

// stackGrow implements the grow protocol: outer first. For each container
// from outermost inward, grow it to the current target, then subtract its
// offset from the target before moving to the next (inner) layer.
// Finally grow the filesystem to whatever target remains.
func (s *BlockStack) stackGrow(pos uint64) error {
	cur := pos

	for _, c := range s.Containers {
		if err := c.Grow(cur); err != nil {
			return errors.Wrap(err, "failed to grow container")
		}

		cur -= c.Offset()
	}

	return s.Fs.Grow(cur)
}

// stackReserveEndArea implements the shrink protocol: inner first. The
// filesystem target is pos minus the cumulative overhead of every
// container, aligned down to its block size. Layers are then walked
// innermost to outermost, each asked to reserve the end area at pos
// reduced by the cumulative outer overhead above that layer.
func (s *BlockStack) stackReserveEndArea(pos uint64) error {
	var overhead uint64
	for _, c := range s.Containers {
		overhead += c.Offset()
	}

	if pos < overhead {
		return errors.Wrapf(ErrCantShrink, "pos=%d smaller than stack overhead=%d", pos, overhead)
	}

	fsTarget := AlignDown(pos-overhead, s.Fs.BlockSize())
	if err := s.Fs.ReserveEndArea(fsTarget); err != nil {
		return err
	}

	// Walk from the innermost container (last in Containers) to the
	// outermost, each container's target being pos reduced by the
	// overhead of every container strictly outside of it.
	for i := len(s.Containers) - 1; i >= 0; i-- {
		var outerOverhead uint64
		for j := 0; j < i; j++ {
			outerOverhead += s.Containers[j].Offset()
		}

		innerPos := pos - outerOverhead
		if err := s.Containers[i].ReserveEndArea(innerPos); err != nil {
			return errors.Wrapf(err, "failed to reserve end area on container %d", i)
		}
	}

	return nil
}

// Deactivate tears down every container in the stack in reverse order
// (innermost/top-most first): close bcache, then close LUKS.
func (s *BlockStack) Deactivate() error {
	for i := len(s.Containers) - 1; i >= 0; i-- {
		if err := s.Containers[i].Deactivate(); err != nil {
			return err
		}
	}

	return nil
}
