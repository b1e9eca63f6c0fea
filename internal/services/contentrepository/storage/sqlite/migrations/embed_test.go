package migrations

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/louisbranch/contentgraph/internal/platform/storage/sqlitemigrate"
)

func embeddedFiles(t *testing.T, fsys fs.FS, root string) []string {
	t.Helper()
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		t.Fatalf("read %s migrations: %v", root, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files
}

func TestEventsMigrationsEmbedded(t *testing.T) {
	files := embeddedFiles(t, EventsFS, "events")
	if len(files) == 0 {
		t.Fatal("expected events migrations to be embedded")
	}
	if files[0] != "001_events.sql" {
		t.Fatalf("expected first events migration 001_events.sql, got %s", files[0])
	}
}

func TestProjectionMigrationsEmbedded(t *testing.T) {
	files := embeddedFiles(t, ProjectionsFS, "projections")
	want := []string{"001_content_graph.sql", "002_hidden_state.sql", "003_workspaces.sql", "004_checkpoints.sql"}
	if len(files) != len(want) {
		t.Fatalf("projection migrations = %v, want %v", files, want)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("projection migration %d = %s, want %s", i, files[i], want[i])
		}
	}
}

func TestMigrationsHaveUpSection(t *testing.T) {
	for _, tc := range []struct {
		fsys fs.FS
		root string
	}{
		{EventsFS, "events"},
		{ProjectionsFS, "projections"},
	} {
		for _, name := range embeddedFiles(t, tc.fsys, tc.root) {
			data, err := fs.ReadFile(tc.fsys, tc.root+"/"+name)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			up := sqlitemigrate.ExtractUpMigration(string(data))
			if !strings.Contains(up, "CREATE TABLE") {
				t.Fatalf("%s: up section has no CREATE TABLE", name)
			}
			if strings.Contains(up, "DROP TABLE") {
				t.Fatalf("%s: up section leaks the down section", name)
			}
		}
	}
}
