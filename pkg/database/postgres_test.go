package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studycal-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "studycal", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=studycal sslmode=disable", dsn)
}

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "00001_create_events.sql", entries[0].Name())
	assert.Equal(t, "00002_create_integrations.sql", entries[1].Name())
	assert.Equal(t, "00003_add_event_origin_ref.sql", entries[2].Name())
}
