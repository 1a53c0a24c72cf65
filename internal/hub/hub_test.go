package hub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hankgalt/textembed/pkg/domain"
)

func newTestRepo(t *testing.T, handler http.Handler) (*Repo, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	repo, err := NewRepo(Config{
		RepoID:   "acme/test-model",
		CacheDir: t.TempDir(),
		Endpoint: srv.URL,
	})
	require.NoError(t, err)
	return repo, srv
}

func TestRepoGet(t *testing.T) {
	t.Parallel()

	t.Run("downloads and caches", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			assert.Equal(t, "/acme/test-model/resolve/main/config.json", r.URL.Path)
			fmt.Fprint(w, `{"pad_token_id": 0}`)
		}))

		path, err := repo.Get("config.json")
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"pad_token_id": 0}`, string(data))
		assert.Equal(t, int32(1), hits.Load())

		// second get is served from cache
		again, err := repo.Get("config.json")
		require.NoError(t, err)
		assert.Equal(t, path, again)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("nested file names", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/acme/test-model/resolve/main/onnx/model.onnx", r.URL.Path)
			w.Write([]byte("weights"))
		}))

		path, err := repo.Get("onnx/model.onnx")
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "weights", string(data))
	})

	t.Run("missing file is a repository error", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepo(t, http.NotFoundHandler())

		_, err := repo.Get("model.onnx")
		require.ErrorIs(t, err, domain.ErrRepository)
		assert.Contains(t, err.Error(), "model.onnx")
	})

	t.Run("failed download leaves no cache entry", func(t *testing.T) {
		t.Parallel()

		repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		_, err := repo.Get("model.onnx")
		require.ErrorIs(t, err, domain.ErrRepository)

		_, err = repo.Get("model.onnx")
		require.ErrorIs(t, err, domain.ErrRepository)
	})
}

func TestNewRepoValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRepo(Config{CacheDir: t.TempDir()})
	require.ErrorIs(t, err, domain.ErrRepository)

	_, err = NewRepo(Config{RepoID: "acme/test-model"})
	require.ErrorIs(t, err, domain.ErrRepository)
}
