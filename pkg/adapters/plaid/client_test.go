package plaid_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/adapters/plaid"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

func testAuth() domain.AuthContext {
	return domain.AuthContext{UserID: "u1", AccessToken: "access-sandbox-123"}
}

func TestFetchAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accounts/get", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client-id", body["client_id"])
		assert.Equal(t, "access-sandbox-123", body["access_token"])

		json.NewEncoder(w).Encode(map[string]any{
			"accounts": []map[string]any{{
				"account_id": "a1",
				"name":       "Checking",
				"type":       "depository",
				"subtype":    "checking",
				"balances": map[string]any{
					"available":         100.50,
					"current":           110.25,
					"iso_currency_code": "USD",
				},
			}},
		})
	}))
	defer srv.Close()

	client := plaid.New("client-id", "secret", plaid.WithBaseURL(srv.URL))
	accounts, err := client.FetchAccounts(context.Background(), testAuth())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Checking", accounts[0].Name)
	assert.Equal(t, "110.25", accounts[0].BalanceCurrent.StringFixed(2))
	assert.Equal(t, "USD", accounts[0].Currency)
}

func TestFetchTransactions_Paginates(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/get", r.URL.Path)
		pages++

		var body struct {
			Options struct {
				Offset int `json:"offset"`
			} `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		tx := map[string]any{"transaction_id": "t", "amount": 12.5, "date": "2026-08-01", "name": "x", "account_id": "a1"}
		resp := map[string]any{"total_transactions": 3}
		if body.Options.Offset == 0 {
			resp["transactions"] = []map[string]any{tx, tx}
		} else {
			resp["transactions"] = []map[string]any{tx}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := plaid.New("client-id", "secret", plaid.WithBaseURL(srv.URL))
	rows, err := client.FetchTransactions(context.Background(), testAuth(), domain.DateRange{
		Start: time.Now().AddDate(0, -1, 0),
		End:   time.Now(),
	})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, 2, pages)
}

func TestErrorClassification(t *testing.T) {
	cases := map[string]struct {
		status int
		code   string
		want   domain.FailureKind
	}{
		"login required": {http.StatusBadRequest, "ITEM_LOGIN_REQUIRED", domain.FailureAuthExpired},
		"rate limited":   {http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", domain.FailureRateLimited},
		"server error":   {http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", domain.FailureUpstreamUnavailable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]string{"error_code": tc.code})
			}))
			defer srv.Close()

			client := plaid.New("client-id", "secret", plaid.WithBaseURL(srv.URL))
			_, err := client.FetchAccounts(context.Background(), testAuth())
			require.Error(t, err)

			var capErr *domain.CapabilityError
			require.ErrorAs(t, err, &capErr)
			assert.Equal(t, tc.want, capErr.Kind)
		})
	}
}

func TestUnreachableHostIsUpstreamUnavailable(t *testing.T) {
	client := plaid.New("client-id", "secret", plaid.WithBaseURL("http://127.0.0.1:1"))
	_, err := client.FetchAccounts(context.Background(), testAuth())

	var capErr *domain.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, domain.FailureUpstreamUnavailable, capErr.Kind)
	assert.True(t, capErr.Retryable())
}

func TestSyncAll_DrainsCursorStream(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transactions/sync", r.URL.Path)
		calls++

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch body["cursor"] {
		case nil:
			json.NewEncoder(w).Encode(map[string]any{
				"added":       []map[string]any{{"transaction_id": "t1"}},
				"next_cursor": "c1",
				"has_more":    true,
			})
		case "c1":
			json.NewEncoder(w).Encode(map[string]any{
				"added":       []map[string]any{{"transaction_id": "t2"}},
				"removed":     []map[string]any{{"transaction_id": "t0"}},
				"next_cursor": "c2",
				"has_more":    false,
			})
		default:
			t.Fatalf("unexpected cursor %v", body["cursor"])
		}
	}))
	defer srv.Close()

	client := plaid.New("client-id", "secret", plaid.WithBaseURL(srv.URL))
	res, err := client.SyncAll(context.Background(), testAuth(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Len(t, res.Added, 2)
	assert.Equal(t, []string{"t0"}, res.RemovedIDs)
	assert.Equal(t, "c2", res.NextCursor)
	assert.False(t, res.HasMore)
}

func TestLinkTokenFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/link/token/create":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "PennyWise", body["client_name"])
			json.NewEncoder(w).Encode(map[string]string{"link_token": "link-sandbox-42"})
		case "/item/public_token/exchange":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "access-42", "item_id": "item-42"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := plaid.New("client-id", "secret", plaid.WithBaseURL(srv.URL))

	link, err := client.CreateLinkToken(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "link-sandbox-42", link)

	access, item, err := client.ExchangePublicToken(context.Background(), "public-42")
	require.NoError(t, err)
	assert.Equal(t, "access-42", access)
	assert.Equal(t, "item-42", item)
}
