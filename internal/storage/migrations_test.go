package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_ReachesExpectedVersion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
	assert.Equal(t, migrations[len(migrations)-1].Version, ExpectedSchemaVersion)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))
}

func TestMigrate_CreatesSchemaObjects(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	objects := []struct {
		kind string
		name string
	}{
		{kind: "table", name: "users"},
		{kind: "table", name: "bank_accounts"},
		{kind: "table", name: "transactions"},
		{kind: "table", name: "recurring_transactions"},
		{kind: "index", name: "idx_transactions_recurring"},
		{kind: "index", name: "idx_recurring_account"},
		{kind: "trigger", name: "bank_accounts_touch"},
	}

	for _, obj := range objects {
		t.Run(obj.name, func(t *testing.T) {
			var count int
			err := store.db.QueryRow(`
				SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?
			`, obj.kind, obj.name).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestMigrate_VersionsAreSequential(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migration %q", m.Description)
		assert.NotEmpty(t, m.Description)
		assert.NotNil(t, m.Up)
	}
}

func TestMigrate_ForeignKeysEnforced(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	var enabled int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&enabled))
	assert.Equal(t, 1, enabled)
}
