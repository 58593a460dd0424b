// Package newrelic provides ingestion: NRQL queries against the NerdGraph
// API, error-group fetching, trace fetching, ranking, and ignore filtering.
package newrelic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nightwatchhq/nightwatch/pkg/models"
	"github.com/nightwatchhq/nightwatch/pkg/version"
)

const graphQLEndpoint = "https://api.newrelic.com/graphql"

// Client queries New Relic over the NerdGraph GraphQL API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	accountID  string
	appName    string
	logger     *slog.Logger
}

// NewClient creates a New Relic client for one account and application.
func NewClient(apiKey, accountID, appName string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   graphQLEndpoint,
		apiKey:     apiKey,
		accountID:  accountID,
		appName:    appName,
		logger:     slog.Default().With("component", "newrelic"),
	}
}

// NewClientWithEndpoint targets a custom API URL. Useful for testing with
// a mock server.
func NewClientWithEndpoint(apiKey, accountID, appName, endpoint string) *Client {
	c := NewClient(apiKey, accountID, appName)
	c.endpoint = endpoint
	return c
}

type graphQLResponse struct {
	Data struct {
		Actor struct {
			Account struct {
				NRQL struct {
					Results []map[string]any `json:"results"`
				} `json:"nrql"`
			} `json:"account"`
		} `json:"actor"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// QueryNRQL executes a NRQL query and returns its result rows.
func (c *Client) QueryNRQL(ctx context.Context, nrql string) ([]map[string]any, error) {
	graphql := fmt.Sprintf(`{
  actor {
    account(id: %s) {
      nrql(query: %q) {
        results
      }
    }
  }
}`, c.accountID, nrql)

	payload, err := json.Marshal(map[string]string{"query": graphql})
	if err != nil {
		return nil, fmt.Errorf("marshal NRQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create NRQL request: %w", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute NRQL query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("NerdGraph returned HTTP %d: %s", resp.StatusCode, body)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode NRQL response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		c.logger.Error("NRQL query error", "message", decoded.Errors[0].Message)
		return nil, nil
	}
	return decoded.Data.Actor.Account.NRQL.Results, nil
}

// FetchErrors returns one ErrorGroup per unique (error class, transaction)
// pair seen in the lookback window, with occurrence counts.
func (c *Client) FetchErrors(ctx context.Context, since string) ([]models.ErrorGroup, error) {
	nrql := fmt.Sprintf(
		"SELECT count(*) AS occurrences, "+
			"latest(error.class) AS error_class, "+
			"latest(error.message) AS error_message, "+
			"latest(transactionName) AS transaction, "+
			"latest(path) AS http_path, "+
			"latest(host) AS host, "+
			"latest(entityGuid) AS entity_guid, "+
			"latest(timestamp) AS last_seen "+
			"FROM TransactionError "+
			"WHERE appName = '%s' "+
			"SINCE %s ago "+
			"FACET error.class, transactionName "+
			"LIMIT 50",
		escapeNRQL(c.appName), since)

	c.logger.Info("Querying New Relic for errors", "since", since)
	rows, err := c.QueryNRQL(ctx, nrql)
	if err != nil {
		return nil, err
	}

	groups := make([]models.ErrorGroup, 0, len(rows))
	total := 0
	for _, row := range rows {
		g := models.ErrorGroup{
			ErrorClass:  stringAttr(row, "error_class", facetAttr(row, 0, "Unknown")),
			Transaction: stringAttr(row, "transaction", facetAttr(row, 1, "Unknown")),
			Message:     clip(stringAttr(row, "error_message", ""), 500),
			Occurrences: intAttr(row, "occurrences", 1),
			LastSeen:    stringAttr(row, "last_seen", ""),
			HTTPPath:    stringAttr(row, "http_path", ""),
			Host:        stringAttr(row, "host", ""),
			EntityGUID:  stringAttr(row, "entity_guid", ""),
		}
		total += g.Occurrences
		groups = append(groups, g)
	}

	c.logger.Info("Fetched error groups", "groups", len(groups), "occurrences", total)
	return groups, nil
}

// FetchTraces returns detailed trace material for one error group: recent
// TransactionError events plus ErrorTrace events with stack traces.
func (c *Client) FetchTraces(ctx context.Context, errGroup models.ErrorGroup, since string) (models.TraceData, error) {
	txNRQL := fmt.Sprintf(
		"SELECT error.message, error.class, appName, transactionName, "+
			"path, host, timestamp, traceId, entityGuid "+
			"FROM TransactionError "+
			"WHERE appName = '%s' "+
			"AND error.class = '%s' "+
			"AND transactionName = '%s' "+
			"SINCE %s ago LIMIT 5",
		escapeNRQL(c.appName), escapeNRQL(errGroup.ErrorClass), escapeNRQL(errGroup.Transaction), since)

	traceNRQL := fmt.Sprintf(
		"SELECT * FROM ErrorTrace "+
			"WHERE appName = '%s' "+
			"AND error.class = '%s' "+
			"SINCE %s ago LIMIT 3",
		escapeNRQL(c.appName), escapeNRQL(errGroup.ErrorClass), since)

	txErrors, err := c.QueryNRQL(ctx, txNRQL)
	if err != nil {
		return models.TraceData{}, err
	}
	errorTraces, err := c.QueryNRQL(ctx, traceNRQL)
	if err != nil {
		return models.TraceData{}, err
	}

	c.logger.Info("Fetched traces",
		"error_class", errGroup.ErrorClass,
		"tx_errors", len(txErrors),
		"stack_traces", len(errorTraces))

	return models.TraceData{
		TransactionErrors: txErrors,
		ErrorTraces:       errorTraces,
	}, nil
}

func escapeNRQL(value string) string {
	return strings.ReplaceAll(value, "'", `\'`)
}

func stringAttr(row map[string]any, key, def string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return def
}

func intAttr(row map[string]any, key string, def int) int {
	switch v := row[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func facetAttr(row map[string]any, idx int, def string) string {
	facets, ok := row["facet"].([]any)
	if !ok || idx >= len(facets) || facets[idx] == nil {
		return def
	}
	return fmt.Sprintf("%v", facets[idx])
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
