package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/bridge"
	"pushbridge/internal/config"
	"pushbridge/internal/credentials"
	"pushbridge/internal/objects"
	"pushbridge/internal/provider"
)

const testSecret = "Zgfr56gFe87jJOM"

type fakeClient struct {
	mu    sync.Mutex
	user  string
	token string
	sent  []provider.Message
}

func (c *fakeClient) SetToken(token string) { c.token = token }

func (c *fakeClient) Send(_ context.Context, msg provider.Message) (*provider.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Token = c.token
	msg.User = c.user
	c.sent = append(c.sent, msg)
	return &provider.Response{Status: 1, Request: "req-1"}, nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const baseConfig = `{"instance":{"namespace":"pushover.0"},"objects":{"driver":"memory"},"provider":{},"logging":{"level":"error"}}`

func newTestApp(t *testing.T, native map[string]any) (*App, *objects.Memory, *fakeClient) {
	t.Helper()
	return newTestAppWithConfig(t, baseConfig, native)
}

func newTestAppWithConfig(t *testing.T, cfg string, native map[string]any) (*App, *objects.Memory, *fakeClient) {
	t.Helper()
	path := writeConfig(t, cfg)
	st := objects.NewMemory(
		&objects.Object{ID: objects.SystemConfigID, Native: map[string]any{"secret": testSecret}},
		&objects.Object{ID: objects.InstanceID("pushover.0"), Native: native},
	)
	client := &fakeClient{}
	factory := func(opts provider.Options) (provider.Client, error) {
		client.user = opts.User
		client.token = opts.Token
		return client, nil
	}
	a, err := NewApp(context.Background(), path,
		WithStore(st),
		WithProviderFactory(factory),
		WithEnv(func(string) string { return "" }),
		WithoutTransports(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, st, client
}

func TestPrepareMigratesAndReloads(t *testing.T) {
	a, st, client := newTestApp(t, map[string]any{"user": "u1", "token": "t1", "title": "ioBroker"})
	ctx := context.Background()

	require.False(t, a.Handler().Ready())
	require.NoError(t, a.Prepare(ctx))
	require.True(t, a.Handler().Ready())

	obj, err := st.GetObject(ctx, objects.InstanceID("pushover.0"))
	require.NoError(t, err)
	_, plain := obj.Native["token"]
	assert.False(t, plain)
	enc, _ := obj.NativeString("enc_token")
	assert.Equal(t, "t1", credentials.Decrypt(testSecret, enc))

	out, reply, err := a.Handler().Handle(ctx, bridge.Command{
		Command: bridge.CommandSend,
		Message: json.RawMessage(`{"message":"hello"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, bridge.Delivered, out)
	require.NotNil(t, reply)
	assert.Nil(t, reply.Error)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "t1", client.sent[0].Token)
	assert.Equal(t, "u1", client.sent[0].User)
	assert.Equal(t, "ioBroker", client.sent[0].Title)
}

func TestPrepareWithoutInstanceIsNotConfigured(t *testing.T) {
	path := writeConfig(t, `{"instance":{"namespace":"pushover.1"},"objects":{},"provider":{},"logging":{"level":"error"}}`)
	a, err := NewApp(context.Background(), path, WithStore(objects.NewMemory()), WithoutTransports())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Prepare(context.Background()))
	_, reply, err := a.Handler().Handle(context.Background(), bridge.Command{
		Command: bridge.CommandSend,
		Message: json.RawMessage(`"hi"`),
	})
	require.NoError(t, err)
	require.NotNil(t, reply.Error)
	assert.Contains(t, *reply.Error, "not configured")
}

func TestPrepareFailsWithoutSecret(t *testing.T) {
	path := writeConfig(t, `{"instance":{},"objects":{},"provider":{},"logging":{"level":"error"}}`)
	st := objects.NewMemory(&objects.Object{ID: objects.InstanceID("pushover.0"), Native: map[string]any{"token": "t"}})
	a, err := NewApp(context.Background(), path, WithStore(st), WithoutTransports())
	require.NoError(t, err)
	defer a.Close()

	err = a.Prepare(context.Background())
	assert.ErrorIs(t, err, credentials.ErrSecretUnavailable)
	assert.False(t, a.Handler().Ready())
}

func TestMigrateCredentialsIsIdempotent(t *testing.T) {
	a, st, _ := newTestApp(t, map[string]any{"user": "u1", "token": "t1"})
	res, err := a.MigrateCredentials(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Migrated)

	before := st.IOCount()
	res, err = a.MigrateCredentials(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	// Only the instance read; no write.
	assert.Equal(t, before+1, st.IOCount())
}

func TestApplyConfigUpdatesDedupWindow(t *testing.T) {
	a, _, _ := newTestApp(t, map[string]any{})
	oldCfg := a.Config()
	newCfg := *oldCfg
	newCfg.Dedup = config.DedupConfig{Window: "3s"}

	a.applyConfig(oldCfg, &newCfg)
	assert.Equal(t, 3*time.Second, a.dedup.Window())
}

func TestStartStop(t *testing.T) {
	a, _, _ := newTestApp(t, map[string]any{"user": "u1", "enc_token": credentials.Encrypt(testSecret, "t1")})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Start(ctx))
	assert.True(t, a.Handler().Ready())

	ready, body := a.health()
	assert.True(t, ready)
	assert.Contains(t, body, "supervisor")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSignal))
}

func TestStartCountsStartupMigration(t *testing.T) {
	cfg := `{"instance":{"namespace":"pushover.0"},"objects":{"driver":"memory"},"provider":{},"logging":{"level":"error"},"metrics":{"enabled":true}}`
	a, _, _ := newTestAppWithConfig(t, cfg, map[string]any{"user": "u1", "token": "t1"})
	require.NotNil(t, a.met)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Start(ctx))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(a.met.Migrations) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, a.Stop(stopCtx, StopSignal))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.met.Migrations))
}
