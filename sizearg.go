package blocks

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var sizeArgRe = regexp.MustCompile(`^([0-9]+)([bkmgtpe]?)$`)

// suffixOrder gives the power of 1024 a size-argument suffix multiplies by.
// position in "bkmgtpe" is the power itself ('b' => 0, 'k' => 1, ...).
var suffixOrder = "bkmgtpe"

// ParseSize parses a size argument of the grammar
// ^[0-9]+[bkmgtpe]?$ (case-insensitive), where the suffix gives a
// multiplier of 1024^n for n = position of the suffix letter in "bkmgtpe".
// A bare number (no suffix) is taken as bytes.
func ParseSize(s string) (uint64, error) {
	m := sizeArgRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, errors.Errorf("invalid size argument %q", s)
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size argument %q", s)
	}

	if m[2] == "" {
		return n, nil
	}

	pos := strings.IndexByte(suffixOrder, m[2][0])
	if pos < 0 {
		return 0, errors.Errorf("invalid size suffix in %q", s)
	}

	mult := uint64(1)
	for i := 0; i < pos; i++ {
		mult *= 1024
	}

	return n * mult, nil
}
