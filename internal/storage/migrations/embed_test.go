package migrations

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_initial.sql", 1, false},
		{"002_notifications.sql", 2, false},
		{"010_something.sql", 10, false},
		{"notaversion.sql", 0, true},
		{"abc_x.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVersion(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVersion(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	for _, dir := range []string{"sqlite", "postgres"} {
		fsys := SQLite
		if dir == "postgres" {
			fsys = Postgres
		}
		files, err := List(fsys, dir)
		if err != nil {
			t.Fatalf("List(%s) error = %v", dir, err)
		}
		if len(files) != 2 {
			t.Fatalf("List(%s) returned %d migrations; want 2", dir, len(files))
		}
		for i, m := range files {
			if m.Version != i+1 {
				t.Errorf("%s migration %d has version %d", dir, i, m.Version)
			}
			if m.SQL == "" {
				t.Errorf("%s migration %s is empty", dir, m.Name)
			}
		}
	}
}
