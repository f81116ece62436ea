package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/service"
)

// consentTimeout bounds how long the connect flow waits for the user to
// finish authenticating with the bank.
const consentTimeout = 10 * time.Minute

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect <account-id>",
		Short: "Connect a bank account",
		Long: `Connect a bank account through the provider's OAuth consent flow.

This command will:
1. Create a pending connection for the account
2. Print the bank's consent URL for you to open
3. Wait for the redirect on a local callback server
4. Exchange the authorization code and activate the connection`,
		Args: cobra.ExactArgs(1),
		RunE: runConnect,
	}
	return cmd
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	accountID := args[0]

	user, err := requireUser()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client, err := initProvider()
	if err != nil {
		return err
	}

	// One open connection per account. Surface the existing one instead of
	// failing on the constraint.
	if existing, err := store.GetOpenConnection(ctx, user, accountID); err == nil {
		return fmt.Errorf("account %s already has an open connection (id %d, status %s); disconnect it first",
			accountID, existing.ID, existing.Status)
	}

	state := uuid.New().String()
	conn := &model.BankConnection{
		UserID:            user,
		Provider:          client.Name(),
		ExternalAccountID: accountID,
		Status:            model.ConnectionPending,
		ConsentState:      state,
		ConsentExpiresAt:  time.Now().Add(consentTimeout),
	}
	if err := store.CreateConnection(ctx, conn); err != nil {
		return err
	}

	authURL := client.AuthCodeURL(state)
	cmd.Println("Open this URL in your browser to authorize access:")
	cmd.Println()
	cmd.Println("  " + authURL)
	cmd.Println()
	slog.Info("waiting for bank consent", "account_id", accountID, "timeout", consentTimeout)

	code, err := waitForCallback(ctx, state)
	if err != nil {
		if statusErr := store.SetConnectionStatus(ctx, conn.ID, model.ConnectionError, err.Error()); statusErr != nil {
			slog.Error("failed to mark connection errored", "error", statusErr)
		}
		return err
	}

	tok, err := client.Exchange(ctx, code)
	if err != nil {
		if statusErr := store.SetConnectionStatus(ctx, conn.ID, model.ConnectionError, err.Error()); statusErr != nil {
			slog.Error("failed to mark connection errored", "error", statusErr)
		}
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if err := activateConnection(ctx, store, conn, tok); err != nil {
		return err
	}

	cmd.Printf("Connected account %s (connection %d)\n", accountID, conn.ID)
	return nil
}

func activateConnection(ctx context.Context, store service.Storage, conn *model.BankConnection, tok *oauth2.Token) error {
	conn.AccessToken = tok.AccessToken
	conn.RefreshToken = tok.RefreshToken
	conn.TokenExpiresAt = tok.Expiry
	conn.Status = model.ConnectionActive
	conn.ConsentState = ""
	conn.ConsentExpiresAt = time.Time{}

	if err := store.UpdateConnection(ctx, conn); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// waitForCallback runs a local HTTP server until the provider redirects
// back with a code for the expected state, or the consent window closes.
func waitForCallback(ctx context.Context, state string) (string, error) {
	redirect, err := url.Parse(viper.GetString("provider.redirect_url"))
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errorChan <- fmt.Errorf("callback state did not match; possible session mixup")
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			errorChan <- fmt.Errorf("no authorization code received")
			return
		}

		codeChan <- code
		_, _ = fmt.Fprint(w, `<html><body>
			<h1>Account connected</h1>
			<p>You can close this window and return to the terminal.</p>
		</body></html>`)
	})

	server := &http.Server{Addr: ":" + redirect.Port(), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errorChan <- fmt.Errorf("failed to start callback server: %w", err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errorChan:
		return "", err
	case <-time.After(consentTimeout):
		return "", fmt.Errorf("consent expired: no response within %s", consentTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
