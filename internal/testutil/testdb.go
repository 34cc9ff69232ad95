package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"agent-arena/internal/config"
	"agent-arena/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testSchemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// OpenTestStore returns a store bound to a fresh schema. TEST_POSTGRES_DSN is
// used when set; otherwise a shared postgres container is started. The test
// is skipped when neither is available.
func OpenTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()
	dsn := resolveDSN(t)
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	base, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open base db: %v", err)
	}
	createSchemaSQL, err := schemaDDL("CREATE SCHEMA %s", schema)
	if err != nil {
		base.Close()
		t.Fatalf("invalid schema name: %v", err)
	}
	if _, err := base.Exec(context.Background(), createSchemaSQL); err != nil {
		base.Close()
		t.Fatalf("create schema: %v", err)
	}
	base.Close()

	st, err := store.New(withSearchPath(dsn, schema))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := applySchema(st); err != nil {
		st.Close()
		t.Fatalf("apply schema: %v", err)
	}

	cleanup := func() {
		st.Close()
		base, err := pgxpool.New(context.Background(), dsn)
		if err == nil {
			if dropSchemaSQL, ddlErr := schemaDDL("DROP SCHEMA %s CASCADE", schema); ddlErr == nil {
				_, _ = base.Exec(context.Background(), dropSchemaSQL)
			}
			base.Close()
		}
	}
	return st, cleanup
}

// MustCreateAgent registers an agent and fails the test on error.
func MustCreateAgent(t *testing.T, st *store.Store, name string, balance int64) string {
	t.Helper()
	id, err := st.CreateAgent(context.Background(), name, "test", name+"-key", balance)
	if err != nil {
		t.Fatalf("create agent %s: %v", name, err)
	}
	return id
}

func resolveDSN(t *testing.T) string {
	t.Helper()
	if cfg, err := config.LoadTest(); err == nil {
		return cfg.TestPostgresDSN
	}
	if testing.Short() {
		t.Skip("skip test db: TEST_POSTGRES_DSN not set")
	}
	containerOnce.Do(func() {
		containerDSN, containerErr = startContainer()
	})
	if containerErr != nil {
		t.Skipf("skip test db: %v", containerErr)
	}
	return containerDSN
}

func startContainer() (string, error) {
	if err := exec.Command("docker", "info").Run(); err != nil {
		return "", fmt.Errorf("docker not available: %w", err)
	}
	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("arena"),
		postgres.WithUsername("arena"),
		postgres.WithPassword("arena"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", err
	}
	return pg.ConnectionString(ctx, "sslmode=disable")
}

func applySchema(st *store.Store) error {
	path, err := findInitMigrationPath()
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = st.Pool.Exec(context.Background(), string(b))
	return err
}

func findInitMigrationPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, "migrations", "000001_init.up.sql")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("000001_init.up.sql not found from %s", dir)
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}

func schemaDDL(format, schema string) (string, error) {
	if !testSchemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("schema %q does not match required pattern", schema)
	}
	return fmt.Sprintf(format, pgx.Identifier{schema}.Sanitize()), nil
}
