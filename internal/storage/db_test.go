package storage

import "testing"

// TestMigrateURL verifies DSNs are rewritten to the pgx5 scheme.
func TestMigrateURL(t *testing.T) {
	tests := []struct {
		dsn, want string
	}{
		{"postgres://u:p@db:5432/gb?sslmode=disable", "pgx5://u:p@db:5432/gb?sslmode=disable"},
		{"postgresql://u@db/gb", "pgx5://u@db/gb"},
		{"pgx5://u@db/gb", "pgx5://u@db/gb"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.dsn); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
