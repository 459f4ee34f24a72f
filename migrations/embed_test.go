package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttendance_ContainsGooseMigrations(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(Attendance(), ".")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries {
		raw, err := fs.ReadFile(Attendance(), e.Name())
		require.NoError(t, err)
		body := string(raw)
		require.True(t, strings.HasPrefix(body, "-- +goose Up"), e.Name())
		require.Contains(t, body, "-- +goose Down", e.Name())
	}

	records, err := fs.ReadFile(Attendance(), "00002_attendance_records.sql")
	require.NoError(t, err)
	require.Contains(t, string(records), "attendance_records_claimed_store_key")
	require.Contains(t, string(records), "WHERE status = 'claimed'")

	directory, err := fs.ReadFile(Attendance(), "00001_attendance_directory.sql")
	require.NoError(t, err)
	// geo filters compare lower(btrim(col)); the indexes must use the same expression
	require.Contains(t, string(directory), "solicitations (lower(btrim(city)), lower(btrim(state)), created_at DESC)")
	require.Contains(t, string(directory), "stores (lower(btrim(city)), lower(btrim(state)))")
	require.NotContains(t, string(directory), "(lower(city)")
}
