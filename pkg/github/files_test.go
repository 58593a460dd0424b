package github

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFile_DecodesBase64AndCaches(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/contents/app/models/order.rb", func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")
		encoded := base64.StdEncoding.EncodeToString([]byte("class Order\nend\n"))
		w.Write([]byte(`{"type": "file", "encoding": "base64", "content": "` + encoded + `"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	content, err := client.ReadFile(context.Background(), "app/models/order.rb")
	require.NoError(t, err)
	assert.Equal(t, "class Order\nend\n", content)

	_, err = client.ReadFile(context.Background(), "app/models/order.rb")
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestReadFile_MissingFile(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	_, err := client.ReadFile(context.Background(), "app/models/ghost.rb")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadFile_DirectoryIsAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/contents/app", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type": "dir"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	_, err := client.ReadFile(context.Background(), "app")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a file")
}

func TestListDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/contents/app/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name": "order.rb", "type": "file", "size": 120}, {"name": "concerns", "type": "dir"}]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	entries, err := client.ListDirectory(context.Background(), "/app/models/")

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "order.rb", entries[0].Name)
	assert.Equal(t, "dir", entries[1].Type)
}

func TestListDirectory_FileIsAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/contents/Gemfile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name": "Gemfile", "type": "file"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	_, err := client.ListDirectory(context.Background(), "Gemfile")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestSearchCode_BuildsQueryAndParsesFragments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /search/code", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OrdersController repo:acme/shop extension:rb", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [
			{"path": "app/controllers/orders_controller.rb",
			 "text_matches": [{"fragment": "class OrdersController"}]}
		]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	hits, err := client.SearchCode(context.Background(), "OrdersController", ".rb")

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "app/controllers/orders_controller.rb", hits[0].Path)
	assert.Equal(t, []string{"class OrdersController"}, hits[0].Fragments)
}
