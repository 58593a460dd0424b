package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/version"
)

func fixResult() models.ErrorAnalysisResult {
	return models.ErrorAnalysisResult{
		Error: models.ErrorGroup{
			ErrorClass:  "NoMethodError",
			Transaction: "Controller/orders/create",
			Occurrences: 12,
		},
		Analysis: models.Analysis{
			Title:      "Guard against nil order total",
			Reasoning:  "Order total can be nil before checkout completes.",
			RootCause:  "Missing nil guard in total calculation",
			HasFix:     true,
			Confidence: models.ConfidenceHigh,
			FileChanges: []models.FileChange{{
				Path:        "app/models/order.rb",
				Action:      models.FileActionModify,
				Content:     "class Order\nend\n",
				Description: "Add nil guard",
			}},
		},
	}
}

func TestCreateFixPR_OpensDraftOnNewBranch(t *testing.T) {
	var branchRef string
	var prBody map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/shop/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, version.Full(), r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object": {"sha": "abc123"}}`))
	})
	mux.HandleFunc("POST /repos/acme/shop/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body["sha"])
		branchRef = body["ref"]
		w.WriteHeader(http.StatusCreated)
	})
	// fileSHA lookup gets a 404, so the commit degrades to a create.
	mux.HandleFunc("GET /repos/acme/shop/contents/app/models/order.rb", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("PUT /repos/acme/shop/contents/app/models/order.rb", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "fix: Guard against nil order total", body["message"])
		assert.NotContains(t, body, "sha")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content": {}}`))
	})
	mux.HandleFunc("POST /repos/acme/shop/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&prBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"number": 7, "html_url": "https://example.test/pull/7", "state": "open"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	client := NewClientWithAPIBase("token", "acme/shop", "main", server.URL)

	pr, err := client.CreateFixPR(context.Background(), fixResult(), 3)

	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "https://example.test/pull/7", pr.HTMLURL)
	assert.True(t, strings.HasPrefix(pr.BranchName, "nightwatch/fix-nomethoderror-"), pr.BranchName)
	assert.Equal(t, "refs/heads/"+pr.BranchName, branchRef)
	assert.Equal(t, pr.BranchName, prBody["head"])
	assert.Equal(t, "main", prBody["base"])
	assert.Equal(t, true, prBody["draft"])
	assert.Contains(t, prBody["body"], "## Fixes #3")
}

func TestCreateFixPR_NoChangesIsAnError(t *testing.T) {
	client := NewClientWithAPIBase("token", "acme/shop", "main", "http://unused.test")
	result := fixResult()
	result.Analysis.FileChanges = nil

	_, err := client.CreateFixPR(context.Background(), result, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file changes")
}

func TestFixBranchName(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "nightwatch/fix-recordnotfound-20240102030405",
		FixBranchName("ActiveRecord::RecordNotFound", at))
	assert.Equal(t, "nightwatch/fix-connectionpooltimeouterror-20240102030405",
		FixBranchName("ActiveRecord::ConnectionAdapters::ConnectionPoolTimeoutError", at))
}
