package objects

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pushbridge/pkg/logx"
)

func sampleInstance() *Object {
	return &Object{
		ID:   InstanceID("pushover.0"),
		Type: "instance",
		Native: map[string]any{
			"user":  "u1",
			"token": "plain",
			"title": "ioBroker",
		},
	}
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	_, err := st.GetObject(ctx, SystemConfigID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SetObject(ctx, sampleInstance()))
	got, err := st.GetObject(ctx, "system.adapter.pushover.0")
	require.NoError(t, err)
	user, ok := got.NativeString("user")
	assert.True(t, ok)
	assert.Equal(t, "u1", user)

	// Overwrite removes attributes that are no longer present.
	delete(got.Native, "token")
	got.Native["enc_token"] = "xyz"
	require.NoError(t, st.SetObject(ctx, got))

	again, err := st.GetObject(ctx, got.ID)
	require.NoError(t, err)
	_, hasPlain := again.Native["token"]
	assert.False(t, hasPlain)
	enc, _ := again.NativeString("enc_token")
	assert.Equal(t, "xyz", enc)
}

func TestMemoryStore(t *testing.T) {
	st := NewMemory()
	exerciseStore(t, st)
	assert.Equal(t, 2, st.Sets)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	src := sampleInstance()
	st := NewMemory(src)
	src.Native["user"] = "mutated"

	got, err := st.GetObject(context.Background(), src.ID)
	require.NoError(t, err)
	got.Native["title"] = "changed"

	again, err := st.GetObject(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", again.Native["user"])
	assert.Equal(t, "ioBroker", again.Native["title"])
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(context.Background(), Config{Driver: "file", Path: dir}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	exerciseStore(t, st)

	_, err = os.Stat(filepath.Join(dir, "system.adapter.pushover.0.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "system.adapter.pushover.0.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	st, err := Open(context.Background(), Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	_, err = st.GetObject(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.db")
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	exerciseStore(t, st)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}
