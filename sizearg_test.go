package blocks_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blocks "machinerun.io/blockconv"
)

func TestParseSize(t *testing.T) {
	for _, td := range []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"512", 512},
		{"1b", 1},
		{"1k", 1024},
		{"1K", 1024},
		{"1m", 1024 * 1024},
		{"4g", 4 * 1024 * 1024 * 1024},
		{"1t", 1024 * 1024 * 1024 * 1024},
		{"  10m  ", 10 * 1024 * 1024},
	} {
		got, err := blocks.ParseSize(td.in)
		require.NoError(t, err, "ParseSize(%q)", td.in)
		assert.Equal(t, td.want, got, "ParseSize(%q)", td.in)
	}
}

func TestParseSizeRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1x", "-1", "1.5g", "g1"} {
		_, err := blocks.ParseSize(in)
		assert.Error(t, err, "ParseSize(%q) should have failed", in)
	}
}
