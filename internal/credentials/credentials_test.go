package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/objects"
	logx "pushbridge/pkg/logx"
)

const ns = "pushover.0"

func seededStore(native map[string]any) *objects.Memory {
	return objects.NewMemory(
		&objects.Object{ID: objects.SystemConfigID, Native: map[string]any{"secret": "Zgfr56gFe87jJOM"}},
		&objects.Object{ID: objects.InstanceID(ns), Native: native},
	)
}

func TestXorRoundTrip(t *testing.T) {
	enc := Encrypt("k", "secret123")
	assert.NotEqual(t, "secret123", enc)
	assert.Equal(t, "secret123", Decrypt("k", enc))
}

func TestXorMatchesRepeatingKey(t *testing.T) {
	enc := Encrypt("ab", "abc")
	// 'a'^'a', 'b'^'b', 'a'^'c'
	assert.Equal(t, []byte{0, 0, 'a' ^ 'c'}, []byte(enc))
}

func TestMigrateEncryptsAndIsIdempotent(t *testing.T) {
	native := map[string]any{"user": "u1", "token": "t1"}
	st := seededStore(native)
	m := NewMigrator(st, ns, native, logx.Nop())

	res, err := m.Migrate(context.Background(), []string{"token"}, false)
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.Equal(t, []string{"token"}, res.Attributes)

	obj, err := st.GetObject(context.Background(), objects.InstanceID(ns))
	require.NoError(t, err)
	_, plain := obj.Native["token"]
	assert.False(t, plain, "plaintext attribute must be removed")
	enc, ok := obj.NativeString("enc_token")
	require.True(t, ok)
	assert.Equal(t, "t1", Decrypt("Zgfr56gFe87jJOM", enc))

	ioBefore := st.IOCount()
	res, err = m.Migrate(context.Background(), []string{"token"}, false)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Equal(t, ioBefore, st.IOCount(), "second migrate must not touch the store")
}

func TestMigrateRenameOnly(t *testing.T) {
	native := map[string]any{"token": "already-encrypted"}
	st := seededStore(native)
	m := NewMigrator(st, ns, native, logx.Nop())

	_, err := m.Migrate(context.Background(), []string{"token"}, true)
	require.NoError(t, err)
	assert.Equal(t, "already-encrypted", m.Native()["enc_token"])
}

func TestMigrateNullPlaintextBecomesEmpty(t *testing.T) {
	native := map[string]any{"token": nil}
	st := seededStore(native)
	m := NewMigrator(st, ns, native, logx.Nop())

	_, err := m.Migrate(context.Background(), []string{"token"}, false)
	require.NoError(t, err)
	assert.Equal(t, "", m.Native()["enc_token"])
}

func TestMigrateFalsyPlaintextBecomesEmpty(t *testing.T) {
	for name, v := range map[string]any{"false": false, "zero": float64(0), "empty": ""} {
		t.Run(name, func(t *testing.T) {
			native := map[string]any{"token": v}
			st := seededStore(native)
			m := NewMigrator(st, ns, native, logx.Nop())

			res, err := m.Migrate(context.Background(), []string{"token"}, false)
			require.NoError(t, err)
			assert.True(t, res.Migrated)
			assert.Equal(t, "", m.Native()["enc_token"])
			_, plain := m.Native()["token"]
			assert.False(t, plain)
		})
	}
}

func TestMigrateSkipsAlreadyEncrypted(t *testing.T) {
	native := map[string]any{"token": "t", "enc_token": "x"}
	st := seededStore(native)
	m := NewMigrator(st, ns, native, logx.Nop())

	res, err := m.Migrate(context.Background(), []string{"token"}, false)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Zero(t, st.IOCount())
}

func TestMigrateFailures(t *testing.T) {
	native := map[string]any{"token": "t"}

	noSecret := objects.NewMemory(&objects.Object{ID: objects.InstanceID(ns), Native: native})
	_, err := NewMigrator(noSecret, ns, native, logx.Nop()).Migrate(context.Background(), []string{"token"}, false)
	var me *MigrationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "no system secret", me.Reason)
	assert.ErrorIs(t, err, ErrSecretUnavailable)

	noInstance := objects.NewMemory(&objects.Object{ID: objects.SystemConfigID, Native: map[string]any{"secret": "s"}})
	_, err = NewMigrator(noInstance, ns, native, logx.Nop()).Migrate(context.Background(), []string{"token"}, false)
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "instance object not found", me.Reason)
	assert.ErrorIs(t, err, objects.ErrNotFound)
}

func TestResolve(t *testing.T) {
	secret := "Zgfr56gFe87jJOM"
	native := map[string]any{"enc_token": Encrypt(secret, "t1")}
	st := seededStore(native)
	r := NewResolver(st, native)

	v, err := r.Resolve(context.Background(), "enc_token")
	require.NoError(t, err)
	assert.Equal(t, "t1", v)

	_, err = r.Resolve(context.Background(), "enc_missing")
	assert.ErrorIs(t, err, ErrNotConfigured)

	got := <-r.ResolveAsync(context.Background(), "enc_token")
	require.NoError(t, got.Err)
	assert.Equal(t, "t1", got.Value)
}

func TestResolveWithoutSecret(t *testing.T) {
	native := map[string]any{"enc_token": "x"}
	r := NewResolver(objects.NewMemory(), native)
	_, err := r.Resolve(context.Background(), "enc_token")
	assert.ErrorIs(t, err, ErrSecretUnavailable)
}
