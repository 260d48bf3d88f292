package blocks

import "github.com/pkg/errors"

// peEntry is one logical extent's mapping to a PV extent, the expanded
// (one-entry-per-PE) form that RotateForward/RotateBackward operate on.
type peEntry struct {
	pvName   string
	pvExtent uint64
}

// expandSegments flattens a segment list into one peEntry per logical
// extent, in logical order.
func expandSegments(segs []LvSegment) []peEntry {
	var out []peEntry

	for _, seg := range segs {
		for i := uint64(0); i < seg.ExtentCount; i++ {
			out = append(out, peEntry{pvName: seg.PvName, pvExtent: seg.PvStartExtent + i})
		}
	}

	return out
}

// compressSegments is the inverse of expandSegments: it merges
// consecutive entries that share a PV and whose PV extents are
// sequential into a single LvSegment, always producing the same
// canonical (maximally merged) segment list for a given entry sequence.
// That determinism is what makes rotation self-inverting: rotating
// forward then backward expands to the same entries it started from,
// and compressing those entries always yields the same segments back.
func compressSegments(entries []peEntry) []LvSegment {
	var segs []LvSegment

	for i, e := range entries {
		if len(segs) > 0 {
			last := &segs[len(segs)-1]
			contiguous := last.PvName == e.pvName &&
				last.PvStartExtent+last.ExtentCount == e.pvExtent

			if contiguous {
				last.ExtentCount++
				continue
			}
		}

		segs = append(segs, LvSegment{
			StartExtent:   uint64(i),
			ExtentCount:   1,
			PvName:        e.pvName,
			PvStartExtent: e.pvExtent,
		})
	}

	return segs
}

// findLV returns the index of the named LV in cfg, or -1.
func findLV(cfg VgConfig, lvName string) int {
	for i, lv := range cfg.LVs {
		if lv.Name == lvName {
			return i
		}
	}

	return -1
}

// RotateForward shifts the named LV's extent mapping left by one PE: the
// first logical extent's mapping moves to the tail, and every other
// extent's logical position shifts down by one. This is the native
// replacement for the original's Augeas-based segment editing. The
// bcache-injection LV strategy commits RotateBackward and uses this
// direction only for its self-check.
func RotateForward(cfg VgConfig, lvName string) (VgConfig, error) {
	return rotate(cfg, lvName, true)
}

// RotateBackward is the exact inverse of RotateForward: the last
// logical extent's mapping moves to the front.
func RotateBackward(cfg VgConfig, lvName string) (VgConfig, error) {
	return rotate(cfg, lvName, false)
}

func rotate(cfg VgConfig, lvName string, forward bool) (VgConfig, error) {
	idx := findLV(cfg, lvName)
	if idx < 0 {
		return VgConfig{}, errors.Errorf("no such LV %q", lvName)
	}

	entries := expandSegments(cfg.LVs[idx].Segments)
	if len(entries) < 2 {
		return VgConfig{}, errors.Errorf("LV %q has %d extents, too few to rotate", lvName, len(entries))
	}

	var shifted []peEntry
	if forward {
		shifted = append(append([]peEntry{}, entries[1:]...), entries[0])
	} else {
		n := len(entries)
		shifted = append([]peEntry{entries[n-1]}, entries[:n-1]...)
	}

	out := cfg
	out.LVs = append([]LvConfig{}, cfg.LVs...)
	out.LVs[idx] = LvConfig{
		Name:     cfg.LVs[idx].Name,
		UUID:     cfg.LVs[idx].UUID,
		Segments: compressSegments(shifted),
	}

	return out, nil
}
