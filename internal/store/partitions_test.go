package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPartitionName(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)
	require.Equal(t, "report_2026_08_26", partitionName(day))

	// Local times normalize to UTC.
	loc := time.FixedZone("UTC+9", 9*3600)
	require.Equal(t, "report_2026_08_26", partitionName(time.Date(2026, 8, 27, 1, 0, 0, 0, loc)))
}

func TestPartitionDay(t *testing.T) {
	t.Parallel()

	day, err := partitionDay("report_2026_08_26")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), day)

	roundTrip, err := partitionDay(partitionName(day))
	require.NoError(t, err)
	require.Equal(t, day, roundTrip)

	for _, name := range []string{"report", "wifi", "report_default", "report_2026-08-26", "something_2026_08_26"} {
		_, err := partitionDay(name)
		require.Error(t, err, name)
	}
}
