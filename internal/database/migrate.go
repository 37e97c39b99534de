package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"sync"
)

// Migration is one versioned SQL change with its rollback script.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

var upFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.up\.sql$`)

// LoadMigrations reads NNNNNN_name.up.sql files, each paired with a
// NNNNNN_name.down.sql, from dir in fsys and returns them ordered by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var out []Migration
	seen := map[int]string{}
	for _, e := range entries {
		match := upFile.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil {
			continue
		}
		version, _ := strconv.Atoi(match[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		up, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		downName := match[1] + "_" + match[2] + ".down.sql"
		down, err := fs.ReadFile(fsys, path.Join(dir, downName))
		if err != nil {
			return nil, fmt.Errorf("%s has no rollback: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: match[2], UpScript: string(up), DownScript: string(down)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

var embedded = sync.OnceValues(func() ([]Migration, error) {
	return LoadMigrations(migrationFS, "migrations")
})

// GetMigrations returns the migrations compiled into the binary. A broken
// embedded set is a build defect, so it panics.
func GetMigrations() []Migration {
	migs, err := embedded()
	if err != nil {
		panic(fmt.Sprintf("embedded migrations: %v", err))
	}
	return migs
}
