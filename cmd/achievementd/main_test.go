package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/achievement-hub/internal/domain/identity"
	authn "github.com/alem-hub/achievement-hub/internal/infrastructure/identity"
)

const testSecret = "0123456789abcdef0123"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "token", "hash-key"})
}

func TestMigrateCommands(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.NotContains(t, out, "applied")

	out, err = execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")

	out, err = execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "pending")

	_, err = execute(t, "migrate", "down")
	require.NoError(t, err)

	out, err = execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "pending"))
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "token", "--sub", "teacher-1", "--role", "teacher")
	require.NoError(t, err)

	provider, err := authn.NewJWTProvider(testSecret, "")
	require.NoError(t, err)
	p, err := provider.Authenticate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, identity.Principal{ID: "teacher-1", Role: identity.RoleTeacher}, p)

	_, err = execute(t, "token", "--sub", "x", "--role", "root")
	assert.Error(t, err)
}

func TestHashKeyCommand(t *testing.T) {
	out, err := execute(t, "hash-key", "s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("s3cret")))
}
