package blocks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var nameWhitelistRe = regexp.MustCompile(nameWhitelistPattern)

// ValidName reports whether name matches the VG/LV name whitelist
// (ASCII alphanumerics plus dot).
func ValidName(name string) bool {
	return name != "" && nameWhitelistRe.MatchString(name)
}

// LvmLayout is the synthesized in-place LVM geometry described in §3: one
// PE is reserved at the front of the device for LVM metadata, and the LV
// is built of two segments so its logical byte stream equals the
// original device's byte stream despite the metadata PE now living at
// physical offset 0.
type LvmLayout struct {
	PeCount  uint64 // total extents available to the VG, excluding the metadata PE
	PeNewPos uint64 // byte offset the original first PE was copied to
	BaStart  uint64 // bootloader area start, in sectors
	BaSize   uint64 // bootloader area size, in sectors
}

// NewLvmLayout computes the synthesized layout for a device of the given
// size, per §4.6 step 3.
func NewLvmLayout(deviceSize uint64) (LvmLayout, error) {
	if deviceSize < 2*PeSize {
		return LvmLayout{}, errors.Errorf("device size %d too small: pe_count would be 0", deviceSize)
	}

	peCount := deviceSize/PeSize - 1

	return LvmLayout{
		PeCount:  peCount,
		PeNewPos: peCount * PeSize,
		BaStart:  2048,
		BaSize:   2048,
	}, nil
}

// LvSegment is one contiguous run of logical extents mapped to a
// contiguous run of a PV's physical extents.
type LvSegment struct {
	StartExtent  uint64
	ExtentCount  uint64
	PvName       string
	PvStartExtent uint64
}

// PvConfig is the single physical volume entry in a synthesized VG.
type PvConfig struct {
	Name     string // "pv0"
	UUID     string
	Device   string
	PeStart  uint64 // sectors
	PeCount  uint64
	BaStart  uint64
	BaSize   uint64
}

// LvConfig is a single logical volume entry in a synthesized VG.
type LvConfig struct {
	Name     string
	UUID     string
	Segments []LvSegment
}

// VgConfig models the LVM text-format metadata this module renders,
// parses, and rotates in place of Augeas-based editing of the original.
type VgConfig struct {
	VgName string
	VgUUID string
	Seqno  int
	PV     PvConfig
	LVs    []LvConfig
}

// NewSynthesizedVgConfig builds the one-PV, one-LV VG config described in
// §4.6 step 8: a single LV of two segments aliasing the rotated PE
// layout (segment 1: the one PE that used to be the filesystem start,
// now living at the end; segment 2: the rest of the filesystem,
// unchanged).
func NewSynthesizedVgConfig(vgName, lvName string, pvUUID, vgUUID string, layout LvmLayout) VgConfig {
	return VgConfig{
		VgName: vgName,
		VgUUID: vgUUID,
		Seqno:  1,
		PV: PvConfig{
			Name:    "pv0",
			UUID:    pvUUID,
			PeStart: layout.BaStart + layout.BaSize,
			PeCount: layout.PeCount,
			BaStart: layout.BaStart,
			BaSize:  layout.BaSize,
		},
		LVs: []LvConfig{{
			Name: lvName,
			UUID: GenGUID().String(),
			Segments: []LvSegment{
				{StartExtent: 0, ExtentCount: 1, PvName: "pv0", PvStartExtent: layout.PeCount - 1},
				{StartExtent: 1, ExtentCount: layout.PeCount - 1, PvName: "pv0", PvStartExtent: 0},
			},
		}},
	}
}

// RenderVgConfig renders cfg as LVM text-format metadata, the same
// format `vgcfgbackup`/`vgcfgrestore` consume.
func RenderVgConfig(cfg VgConfig) string {
	var b strings.Builder

	fmt.Fprintf(&b, "contents = \"Text Format Volume Group\"\nversion = 1\n\n")
	fmt.Fprintf(&b, "%s {\n", cfg.VgName)
	fmt.Fprintf(&b, "\tid = %q\n", cfg.VgUUID)
	fmt.Fprintf(&b, "\tseqno = %d\n", cfg.Seqno)
	fmt.Fprintf(&b, "\textent_size = %d\n", PeSize/SectorSize)
	fmt.Fprintf(&b, "\n\tphysical_volumes {\n")
	fmt.Fprintf(&b, "\t\t%s {\n", cfg.PV.Name)
	fmt.Fprintf(&b, "\t\t\tid = %q\n", cfg.PV.UUID)
	fmt.Fprintf(&b, "\t\t\tpe_start = %d\n", cfg.PV.PeStart)
	fmt.Fprintf(&b, "\t\t\tpe_count = %d\n", cfg.PV.PeCount)
	fmt.Fprintf(&b, "\t\t\tba_start = %d\n", cfg.PV.BaStart)
	fmt.Fprintf(&b, "\t\t\tba_size = %d\n", cfg.PV.BaSize)
	fmt.Fprintf(&b, "\t\t}\n\t}\n")

	fmt.Fprintf(&b, "\n\tlogical_volumes {\n")

	for _, lv := range cfg.LVs {
		fmt.Fprintf(&b, "\t\t%s {\n", lv.Name)
		fmt.Fprintf(&b, "\t\t\tid = %q\n", lv.UUID)
		fmt.Fprintf(&b, "\t\t\tsegment_count = %d\n", len(lv.Segments))

		for i, seg := range lv.Segments {
			fmt.Fprintf(&b, "\t\t\tsegment%d {\n", i+1)
			fmt.Fprintf(&b, "\t\t\t\tstart_extent = %d\n", seg.StartExtent)
			fmt.Fprintf(&b, "\t\t\t\textent_count = %d\n", seg.ExtentCount)
			fmt.Fprintf(&b, "\t\t\t\ttype = \"striped\"\n")
			fmt.Fprintf(&b, "\t\t\t\tstripe_count = 1\n")
			fmt.Fprintf(&b, "\t\t\t\tstripes = [%q, %d]\n", seg.PvName, seg.PvStartExtent)
			fmt.Fprintf(&b, "\t\t\t}\n")
		}

		fmt.Fprintf(&b, "\t\t}\n")
	}

	fmt.Fprintf(&b, "\t}\n}\n")

	return b.String()
}

var reKV = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)
var reStripes = regexp.MustCompile(`^\["([^"]+)",\s*(\d+)\]$`)

// blockKind tags what a "{"-opened block in the config text represents,
// so closing "}" lines know which cursor to pop.
type blockKind int

const (
	blockVG blockKind = iota
	blockPVsContainer
	blockPV
	blockLVsContainer
	blockLV
	blockSegment
)

// ParseVgConfig parses text rendered by RenderVgConfig back into a
// VgConfig. It is a narrow, stack-based parser for this module's own
// output, not a general LVM-config grammar: it never needs to read
// metadata this module did not itself write.
func ParseVgConfig(text string) (VgConfig, error) {
	var cfg VgConfig

	var stack []blockKind
	var curLV *LvConfig
	var curSeg *LvSegment

	top := func() blockKind {
		if len(stack) == 0 {
			return -1
		}

		return stack[len(stack)-1]
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "" || strings.HasPrefix(line, "contents") || strings.HasPrefix(line, "version"):
			continue

		case line == "}":
			switch top() {
			case blockSegment:
				curSeg = nil
			case blockLV:
				curLV = nil
			}

			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case strings.HasSuffix(line, "{") && !strings.Contains(line, "="):
			name := strings.TrimSuffix(line, "{")
			name = strings.TrimSpace(name)

			switch {
			case len(stack) == 0:
				cfg.VgName = name
				stack = append(stack, blockVG)
			case name == "physical_volumes":
				stack = append(stack, blockPVsContainer)
			case name == "logical_volumes":
				stack = append(stack, blockLVsContainer)
			case top() == blockPVsContainer:
				cfg.PV.Name = name
				stack = append(stack, blockPV)
			case top() == blockLVsContainer:
				cfg.LVs = append(cfg.LVs, LvConfig{Name: name})
				curLV = &cfg.LVs[len(cfg.LVs)-1]
				stack = append(stack, blockLV)
			case top() == blockLV && strings.HasPrefix(name, "segment"):
				curLV.Segments = append(curLV.Segments, LvSegment{})
				curSeg = &curLV.Segments[len(curLV.Segments)-1]
				stack = append(stack, blockSegment)
			default:
				stack = append(stack, blockVG) // unknown nested block, ignore contents
			}

		default:
			m := reKV.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			if err := applyKV(&cfg, top(), curLV, curSeg, m[1], strings.TrimSpace(m[2])); err != nil {
				return cfg, err
			}
		}
	}

	return cfg, nil
}

func applyKV(cfg *VgConfig, ctx blockKind, curLV *LvConfig, curSeg *LvSegment, key, val string) error {
	unquote := func(s string) string { return strings.Trim(s, "\"") }

	switch ctx {
	case blockSegment:
		switch key {
		case "start_extent":
			n, _ := strconv.ParseUint(val, 10, 64)
			curSeg.StartExtent = n
		case "extent_count":
			n, _ := strconv.ParseUint(val, 10, 64)
			curSeg.ExtentCount = n
		case "stripes":
			m := reStripes.FindStringSubmatch(val)
			if m == nil {
				return errors.Errorf("malformed stripes value %q", val)
			}

			n, _ := strconv.ParseUint(m[2], 10, 64)
			curSeg.PvName = m[1]
			curSeg.PvStartExtent = n
		}
	case blockLV:
		if key == "id" {
			curLV.UUID = unquote(val)
		}
	case blockPV:
		switch key {
		case "id":
			cfg.PV.UUID = unquote(val)
		case "pe_start":
			n, _ := strconv.ParseUint(val, 10, 64)
			cfg.PV.PeStart = n
		case "pe_count":
			n, _ := strconv.ParseUint(val, 10, 64)
			cfg.PV.PeCount = n
		case "ba_start":
			n, _ := strconv.ParseUint(val, 10, 64)
			cfg.PV.BaStart = n
		case "ba_size":
			n, _ := strconv.ParseUint(val, 10, 64)
			cfg.PV.BaSize = n
		}
	case blockVG:
		switch key {
		case "id":
			cfg.VgUUID = unquote(val)
		case "seqno":
			n, _ := strconv.Atoi(val)
			cfg.Seqno = n
		}
	}

	return nil
}
