package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeItemKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "graphics card", "graphics card"},
		{"surrounding whitespace", "  graphics card ", "graphics card"},
		{"internal runs collapsed", "graphics   card", "graphics card"},
		{"tabs and newlines", "graphics\tcard\n", "graphics card"},
		{"decomposed accents recomposed", "cafe\u0301", "caf\u00e9"},
		{"composed unchanged", "caf\u00e9", "caf\u00e9"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeItemKey(tt.in))
		})
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 1, 12, 30, 45, 123456789, time.UTC)

	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.True(t, out.Equal(in))
}

func TestFormatTime_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	in := time.Date(2026, 3, 1, 15, 0, 0, 0, loc)

	out, err := parseTime(formatTime(in))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, out.Location())
	assert.True(t, out.Equal(in))
}
