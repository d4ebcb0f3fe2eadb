package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/krakenbridge/errs"
)

const testSecret = "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="

func TestStaticProviderReturnsIndependentCopies(t *testing.T) {
	provider, err := NewStatic("key-1", testSecret)
	require.NoError(t, err)

	first, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	first.Wipe()
	require.Nil(t, first.Secret)

	second, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "key-1", second.Key)
	require.Len(t, second.Secret, 64)
	require.NotEqual(t, byte(0), second.Secret[0])
}

func TestStaticProviderRejectsBadSecret(t *testing.T) {
	_, err := NewStatic("key", "!!not-base64!!")
	require.True(t, errs.Is(err, errs.CodeAuth))

	_, err = NewStatic("", testSecret)
	require.True(t, errs.Is(err, errs.CodeAuth))
}

func TestCredentialsStringRedactsSecret(t *testing.T) {
	provider, err := NewStatic("key-1", testSecret)
	require.NoError(t, err)
	creds, err := provider.Credentials(context.Background())
	require.NoError(t, err)

	for _, out := range []string{creds.String(), fmt.Sprintf("%v", creds), fmt.Sprintf("%#v", creds)} {
		require.NotContains(t, out, testSecret)
		require.Contains(t, out, "redacted")
	}
}

func TestEnvProviderLoadsDotenv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("KB_TEST_KEY=env-key\nKB_TEST_SECRET="+testSecret+"\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("KB_TEST_KEY")
		_ = os.Unsetenv("KB_TEST_SECRET")
	})

	provider, err := NewEnv("KB_TEST_KEY", "KB_TEST_SECRET", file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	creds, err := provider.Credentials(context.Background())
	require.NoError(t, err)
	require.Equal(t, "env-key", creds.Key)
	require.Len(t, creds.Secret, 64)
}

func TestEnvProviderMissingVariables(t *testing.T) {
	provider, err := NewEnv("KB_UNSET_KEY_VAR", "KB_UNSET_SECRET_VAR")
	require.NoError(t, err)
	_, err = provider.Credentials(context.Background())
	require.True(t, errs.Is(err, errs.CodeAuth))
}
