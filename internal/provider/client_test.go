package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		Name:         "testbank",
		BaseURL:      server.URL,
		AuthURL:      server.URL + "/oauth/authorize",
		TokenURL:     server.URL + "/oauth/token",
		RevokeURL:    server.URL + "/oauth/revoke",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:9091/callback",
	})
	require.NoError(t, err)
	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing client id", cfg: Config{ClientSecret: "s", BaseURL: "u", AuthURL: "a", TokenURL: "t"}},
		{name: "missing secret", cfg: Config{ClientID: "c", BaseURL: "u", AuthURL: "a", TokenURL: "t"}},
		{name: "missing base URL", cfg: Config{ClientID: "c", ClientSecret: "s", AuthURL: "a", TokenURL: "t"}},
		{name: "missing oauth endpoints", cfg: Config{ClientID: "c", ClientSecret: "s", BaseURL: "u"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), common.ErrMissingConfig)
		})
	}
}

func TestClient_ListTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("returns validated transactions with bearer auth", func(t *testing.T) {
		var gotAuth, gotQuery string
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotQuery = r.URL.RawQuery
			_, _ = w.Write([]byte(`{"transactions": [
				{"id": "t1", "date": "2026-03-01", "description": "UBER TRIP", "amount": -12.50, "currency": "GBP"},
				{"id": "", "date": "2026-03-01", "description": "MISSING ID", "amount": -3.00, "currency": "GBP"},
				{"id": "t2", "date": "2026-03-02", "description": "STRIPE PAYOUT", "amount": 480.00, "currency": "GBP"}
			]}`))
		}))

		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		txns, err := client.ListTransactions(ctx, "tok-123", "acc-1", from, to)
		require.NoError(t, err)

		assert.Equal(t, "Bearer tok-123", gotAuth)
		assert.Contains(t, gotQuery, "from=2026-03-01")
		assert.Contains(t, gotQuery, "to=2026-03-10")

		// The transaction without an ID is dropped at the boundary.
		require.Len(t, txns, 2)
		assert.Equal(t, "t1", txns[0].ID)
		assert.Equal(t, "t2", txns[1].ID)
	})

	t.Run("SCA lapse surfaces as distinct error", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error": "SCA_REQUIRED", "message": "PSU authentication has expired"}`))
		}))

		_, err := client.ListTransactions(ctx, "tok", "acc-1", time.Now().AddDate(0, 0, -30), time.Now())
		assert.ErrorIs(t, err, common.ErrSCAExceeded)
	})

	t.Run("generic failure carries status and truncated body", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(strings.Repeat("x", 2000)))
		}))

		_, err := client.ListTransactions(ctx, "tok", "acc-1", time.Now().AddDate(0, 0, -30), time.Now())
		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusBadGateway, provErr.StatusCode)
		assert.Len(t, provErr.Body, maxErrorBody)
	})

	t.Run("plain 403 is not SCA", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error": "insufficient_scope"}`))
		}))

		_, err := client.ListTransactions(ctx, "tok", "acc-1", time.Now().AddDate(0, 0, -30), time.Now())
		assert.False(t, errors.Is(err, common.ErrSCAExceeded))
		var provErr *ProviderError
		assert.ErrorAs(t, err, &provErr)
	})
}

func TestClient_ListAccounts(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		_, _ = w.Write([]byte(`{"accounts": [{"id": "acc-1", "name": "Current Account", "currency": "GBP"}]}`))
	}))

	accounts, err := client.ListAccounts(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc-1", accounts[0].ID)
}

func TestClient_GetBalance(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/acc-1/balance", r.URL.Path)
		_, _ = w.Write([]byte(`{"account_id": "acc-1", "amount": 1204.33, "currency": "GBP", "as_of": "2026-03-10"}`))
	}))

	balance, err := client.GetBalance(context.Background(), "tok", "acc-1")
	require.NoError(t, err)
	assert.InDelta(t, 1204.33, balance.Amount, 0.001)
}

func TestTransaction_ToModel(t *testing.T) {
	debit := Transaction{ID: "t1", Date: "2026-03-01", Description: "UBER TRIP", Amount: -12.50}
	credit := Transaction{ID: "t2", Date: "2026-03-02", Description: "SALARY", Amount: 2500.00}

	m := debit.ToModel(7, "acc-1")
	assert.Equal(t, model.DirectionDebit, m.Direction)
	assert.Equal(t, int64(7), m.ConnectionID)
	assert.Equal(t, "acc-1", m.AccountID)
	assert.Equal(t, "t1", m.ExternalID)

	m = credit.ToModel(7, "acc-1")
	assert.Equal(t, model.DirectionCredit, m.Direction)
}
