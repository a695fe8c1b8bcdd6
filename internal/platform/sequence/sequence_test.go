package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	day := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC)
	require.Equal(t, "PUR-20250309-00001", Format("PUR", day, 1))
	require.Equal(t, "GJ-20250309-12345", Format("GJ", day, 12345))
	require.Equal(t, "RV-20250309-123456", Format("RV", day, 123456))
}
