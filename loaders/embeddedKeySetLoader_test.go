package loaders

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockKeySetLoader implements KeySetLoader for testing
type MockKeySetLoader struct {
	sets  map[string][]byte
	err   error
	calls int
}

func (m *MockKeySetLoader) Load(_ context.Context, issuer string) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if raw, ok := m.sets[issuer]; ok {
		return raw, nil
	}
	return nil, ErrKeySetNotFound
}

const testIssuer = "https://issuer.example"

func TestNewEmbeddedKeySetLoader(t *testing.T) {
	t.Run("default configuration", func(t *testing.T) {
		loader := NewEmbeddedKeySetLoader()
		assert.True(t, loader.useCache)
		assert.NotNil(t, loader.cache)
		assert.Nil(t, loader.keySetLoader)
	})

	t.Run("with primary loader and without cache", func(t *testing.T) {
		mockLoader := &MockKeySetLoader{}
		loader := NewEmbeddedKeySetLoader(WithKeySetLoader(mockLoader), WithoutCache())
		assert.False(t, loader.useCache)
		assert.Nil(t, loader.cache)
		assert.Equal(t, mockLoader, loader.keySetLoader)
	})
}

func TestEmbeddedKeySetLoader_Load(t *testing.T) {
	ctx := context.Background()
	testSet := []byte(`{"keys":[]}`)

	t.Run("load from primary loader and cache", func(t *testing.T) {
		mockLoader := &MockKeySetLoader{sets: map[string][]byte{testIssuer: testSet}}
		loader := NewEmbeddedKeySetLoader(WithKeySetLoader(mockLoader))

		raw, err := loader.Load(ctx, testIssuer)
		require.NoError(t, err)
		assert.Equal(t, testSet, raw)

		raw, err = loader.Load(ctx, testIssuer)
		require.NoError(t, err)
		assert.Equal(t, testSet, raw)
		assert.Equal(t, 1, mockLoader.calls)
	})

	t.Run("without cache consults primary loader every time", func(t *testing.T) {
		mockLoader := &MockKeySetLoader{sets: map[string][]byte{testIssuer: testSet}}
		loader := NewEmbeddedKeySetLoader(WithKeySetLoader(mockLoader), WithoutCache())

		for i := 0; i < 3; i++ {
			_, err := loader.Load(ctx, testIssuer)
			require.NoError(t, err)
		}
		assert.Equal(t, 3, mockLoader.calls)
	})

	t.Run("not found falls back to embedded google key set", func(t *testing.T) {
		loader := NewEmbeddedKeySetLoader(WithKeySetLoader(&MockKeySetLoader{}))

		raw, err := loader.Load(ctx, "https://accounts.google.com")
		require.NoError(t, err)
		assert.Contains(t, string(raw), "07b80a365428525f8bf7cd0846d74a8ee4ef3625")
	})

	t.Run("primary failure is not masked", func(t *testing.T) {
		boom := errors.New("connection refused")
		loader := NewEmbeddedKeySetLoader(WithKeySetLoader(&MockKeySetLoader{err: boom}))

		_, err := loader.Load(ctx, "https://accounts.google.com")
		require.ErrorIs(t, err, boom)
	})

	t.Run("embedded key set not found", func(t *testing.T) {
		loader := NewEmbeddedKeySetLoader()

		_, err := loader.Load(ctx, "https://unknown.example")
		require.ErrorIs(t, err, ErrKeySetNotFound)
	})
}

func TestFSKeySetLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "issuer.example.json"), []byte(`{"keys":[]}`), 0o600))

	loader := FSKeySetLoader{Dir: dir}

	raw, err := loader.Load(context.Background(), testIssuer+"/")
	require.NoError(t, err)
	assert.JSONEq(t, `{"keys":[]}`, string(raw))

	_, err = loader.Load(context.Background(), "https://missing.example")
	require.ErrorIs(t, err, ErrKeySetNotFound)
}

func TestIssuerHost(t *testing.T) {
	for in, want := range map[string]string{
		"https://accounts.google.com": "accounts.google.com",
		"accounts.google.com":         "accounts.google.com",
		"https://login.example:8443/": "login.example:8443",
		"http://127.0.0.1:5556/dex":   "127.0.0.1:5556",
	} {
		got, err := IssuerHost(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := IssuerHost("")
	require.Error(t, err)
}

func TestHTTPKeySetLoader(t *testing.T) {
	var discoveries, fetches int32
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&discoveries, 1)
		_, _ = w.Write([]byte(`{"issuer":"` + srv.URL + `","jwks_uri":"` + srv.URL + `/certs"}`))
	})
	mux.HandleFunc("/certs", func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte(`{"keys":[{"kid":"a"}]}`))
	})
	mux.HandleFunc("/broken/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/empty/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ctx := context.Background()

	t.Run("discovery", func(t *testing.T) {
		raw, err := NewHTTPKeySetLoader(WithHTTPClient(srv.Client())).Load(ctx, srv.URL)
		require.NoError(t, err)
		assert.JSONEq(t, `{"keys":[{"kid":"a"}]}`, string(raw))
		assert.Equal(t, int32(1), atomic.LoadInt32(&discoveries))
	})

	t.Run("pinned url skips discovery", func(t *testing.T) {
		l := NewHTTPKeySetLoader(WithHTTPClient(srv.Client()), WithJWKSURL("pinned.example", srv.URL+"/certs"))
		_, err := l.Load(ctx, "https://pinned.example")
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&discoveries))
		assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
	})

	t.Run("upstream error", func(t *testing.T) {
		_, err := NewHTTPKeySetLoader(WithHTTPClient(srv.Client())).Load(ctx, srv.URL+"/broken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 502")
	})

	t.Run("missing jwks_uri", func(t *testing.T) {
		_, err := NewHTTPKeySetLoader(WithHTTPClient(srv.Client())).Load(ctx, srv.URL+"/empty")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no jwks_uri")
	})

	t.Run("not found", func(t *testing.T) {
		l := NewHTTPKeySetLoader(WithHTTPClient(srv.Client()), WithJWKSURL("gone.example", srv.URL+"/gone"))
		_, err := l.Load(ctx, "gone.example")
		require.ErrorIs(t, err, ErrKeySetNotFound)
	})
}
