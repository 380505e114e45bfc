package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downtime-backend/internal/apperr"
)

func TestTimestamp(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	testCases := []struct {
		name     string
		input    string
		loc      *time.Location
		expected time.Time
	}{
		{
			name:     "RFC3339 with offset",
			input:    "2024-03-04T08:15:00-03:00",
			loc:      time.UTC,
			expected: time.Date(2024, 3, 4, 11, 15, 0, 0, time.UTC),
		},
		{
			name:     "RFC3339 ignores the location",
			input:    "2024-03-04T08:15:00Z",
			loc:      saoPaulo,
			expected: time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC),
		},
		{
			name:     "fractional seconds",
			input:    "2024-03-04T08:15:00.5Z",
			expected: time.Date(2024, 3, 4, 8, 15, 0, 500_000_000, time.UTC),
		},
		{
			name:     "space separated in location",
			input:    " 2024-03-04 08:15:30 ",
			loc:      saoPaulo,
			expected: time.Date(2024, 3, 4, 11, 15, 30, 0, time.UTC),
		},
		{
			name:     "datetime-local without seconds",
			input:    "2024-03-04T08:15",
			loc:      saoPaulo,
			expected: time.Date(2024, 3, 4, 11, 15, 0, 0, time.UTC),
		},
		{
			name:     "nil location means UTC",
			input:    "2024-03-04 08:15",
			expected: time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Timestamp(tc.input, tc.loc)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestTimestampInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "yesterday", "04/03/2024 08:15", "2024-13-01 00:00"} {
		t.Run(input, func(t *testing.T) {
			_, err := Timestamp(input, time.UTC)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestOptionalTimestamp(t *testing.T) {
	got, err := OptionalTimestamp(nil, time.UTC)
	require.NoError(t, err)
	assert.Nil(t, got)

	raw := "2024-03-04 08:15"
	got, err = OptionalTimestamp(&raw, time.UTC)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 8, got.Hour())

	bad := "nope"
	_, err = OptionalTimestamp(&bad, time.UTC)
	assert.Error(t, err)
}
