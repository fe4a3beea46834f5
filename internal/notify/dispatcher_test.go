package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/provider"
)

type recordingClient struct {
	mu      sync.Mutex
	token   string
	sent    []provider.Message
	tokens  []string
	sendErr error
}

func (c *recordingClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *recordingClient) Send(_ context.Context, msg provider.Message) (*provider.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	c.tokens = append(c.tokens, c.token)
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	return &provider.Response{Status: 1, Request: "req"}, nil
}

type staticCreds map[string]string

func (s staticCreds) Resolve(_ context.Context, attr string) (string, error) {
	v, ok := s[attr]
	if !ok {
		return "", ErrNotConfigured
	}
	return v, nil
}

func newTestDispatcher(creds CredentialSource, native map[string]any) (*Dispatcher, *recordingClient, *int) {
	rc := &recordingClient{}
	created := 0
	d := NewDispatcher(DispatcherConfig{
		Credentials: creds,
		Factory: func(opts provider.Options) (provider.Client, error) {
			created++
			rc.token = opts.Token
			return rc, nil
		},
	})
	d.SetNative(native)
	return d, rc, &created
}

func TestDispatchUsesResolvedToken(t *testing.T) {
	d, rc, created := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{"user": "u1", "title": "ioBroker"})

	resp, err := d.Dispatch(context.Background(), TextRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Status)
	require.Len(t, rc.sent, 1)
	assert.Equal(t, "hello", rc.sent[0].Message)
	assert.Equal(t, "ioBroker", rc.sent[0].Title)
	assert.Equal(t, []string{"t1"}, rc.tokens)
	assert.Equal(t, 1, *created)
	assert.True(t, d.Configured())
}

func TestDispatchTokenOverrideDoesNotStick(t *testing.T) {
	d, rc, created := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{"user": "u1"})
	ctx := context.Background()

	_, err := d.Dispatch(ctx, NewRequest(map[string]any{"message": "a", "token": "X"}))
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, TextRequest("b"))
	require.NoError(t, err)

	assert.Equal(t, []string{"X", "t1"}, rc.tokens)
	assert.Equal(t, 1, *created, "client is created once")
	assert.Equal(t, "t1", d.Defaults().Token)
}

func TestDispatchNotConfigured(t *testing.T) {
	d, _, created := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{})
	_, err := d.Dispatch(context.Background(), TextRequest("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	d, _, created = newTestDispatcher(staticCreds{}, map[string]any{"user": "u1"})
	_, err = d.Dispatch(context.Background(), TextRequest("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	d, _, created = newTestDispatcher(staticCreds{"enc_token": ""}, map[string]any{"user": "u1"})
	_, err = d.Dispatch(context.Background(), TextRequest("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, *created)
	assert.False(t, d.Configured())
}

func TestDispatchSecretFailureIsNotConfigured(t *testing.T) {
	boom := errors.New("store down")
	d := NewDispatcher(DispatcherConfig{
		Credentials: credsFunc(func(context.Context, string) (string, error) { return "", boom }),
		Factory:     func(provider.Options) (provider.Client, error) { return &recordingClient{}, nil },
	})
	d.SetNative(map[string]any{"user": "u1"})

	_, err := d.Dispatch(context.Background(), TextRequest("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, boom)
}

func TestDispatchProviderError(t *testing.T) {
	d, rc, _ := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{"user": "u1"})
	rc.sendErr = &provider.SendError{HTTPStatus: 400, Errors: []string{"message cannot be blank"}}

	_, err := d.Dispatch(context.Background(), TextRequest(""))
	var se *provider.SendError
	require.ErrorAs(t, err, &se)
	_, lastErr := d.LastSend()
	assert.Contains(t, lastErr, "message cannot be blank")
}

func TestSetNativeRebuildsClient(t *testing.T) {
	d, _, created := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{"user": "u1"})
	ctx := context.Background()

	_, err := d.Dispatch(ctx, TextRequest("a"))
	require.NoError(t, err)
	d.SetNative(map[string]any{"user": "u2"})
	assert.False(t, d.Configured())

	_, err = d.Dispatch(ctx, TextRequest("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, *created)
	assert.Equal(t, "u2", d.Defaults().User)
}

func TestDispatchSerializesTokenAndSend(t *testing.T) {
	d, rc, _ := newTestDispatcher(staticCreds{"enc_token": "t1"}, map[string]any{"user": "u1"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := TextRequest("m")
			if i%2 == 0 {
				req = NewRequest(map[string]any{"message": "m", "token": "X"})
			}
			_, _ = d.Dispatch(ctx, req)
		}(i)
	}
	wg.Wait()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	require.Len(t, rc.sent, 20)
	for i, msg := range rc.sent {
		assert.Equal(t, msg.Token, rc.tokens[i], "client token must match the message it sent")
	}
}

type credsFunc func(context.Context, string) (string, error)

func (f credsFunc) Resolve(ctx context.Context, attr string) (string, error) { return f(ctx, attr) }
