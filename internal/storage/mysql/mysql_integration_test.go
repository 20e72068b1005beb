//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breadcast/internal/domain"
	mysqlrepo "breadcast/internal/storage/mysql"
)

func pstr(s string) *string { return &s }

// migrationsDir honours MIGRATIONS_DIR and otherwise uses the repo's migrations/.
func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	ents, err := os.ReadDir(dir)
	require.NoError(t, err, "read migrations dir %s", dir)
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	require.NotEmpty(t, files, "no .sql files in %s", dir)
	sort.Strings(files)

	for _, f := range files {
		b, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = db.Exec(string(b))
		require.NoError(t, err, "exec %s", f)
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=breadcast",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/breadcast?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	require.NoError(t, pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}))
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func TestRepo_MySQL_ActionsAndMisses(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	require.NoError(t, repo.RecordAction(ctx, domain.ReviewAction{
		SessionID: "s1", BakeryID: "7", ReviewID: nil,
		Action: domain.ActionUpdate, Outcome: domain.OutcomeUnresolved,
	}))
	require.NoError(t, repo.RecordAction(ctx, domain.ReviewAction{
		SessionID: "s1", BakeryID: "7", ReviewID: pstr("99"),
		Action: domain.ActionDelete, Outcome: domain.OutcomeOK,
	}))
	require.NoError(t, repo.RecordAction(ctx, domain.ReviewAction{
		SessionID: "s2", BakeryID: "8", ReviewID: pstr("5"),
		Action: domain.ActionUpdate, Outcome: domain.OutcomeUnauthorized, HTTPStatus: 401,
	}))

	got, err := repo.ListActions(ctx, "7", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ActionDelete, got[0].Action, "newest first")
	require.NotNil(t, got[0].ReviewID)
	assert.Equal(t, "99", *got[0].ReviewID)
	assert.Nil(t, got[1].ReviewID)
	assert.False(t, got[0].CreatedAt.IsZero())

	got, err = repo.ListActions(ctx, "7", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// repeated misses collapse onto one row
	require.NoError(t, repo.LogMiss(ctx, "404404", 404, "bakery"))
	require.NoError(t, repo.LogMiss(ctx, "404404", 410, "bakery"))
	var n, status int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(http_status) FROM warm_misses WHERE bakery_id = ?`, "404404").Scan(&n, &status))
	assert.Equal(t, 1, n)
	assert.Equal(t, 410, status)
}
