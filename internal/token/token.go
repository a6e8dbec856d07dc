// Package token supplies fresh access tokens for linked accounts.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/dukerupert/famboard/internal/model"
)

// Refresher returns a new access token for the account identified by
// email. An empty token with a nil error means no token can be had.
type Refresher interface {
	RequestToken(ctx context.Context, accountEmailHint string) (string, error)
}

// Func adapts a function to a Refresher.
type Func func(ctx context.Context, email string) (string, error)

func (f Func) RequestToken(ctx context.Context, email string) (string, error) { return f(ctx, email) }

// Accounts is the account persistence the refresher needs.
type Accounts interface {
	GetByEmail(email string) (*model.Account, error)
	UpdateTokens(id int64, accessToken, refreshToken string) error
}

// GoogleConfig is the OAuth client used to link and refresh Google accounts.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}
}

// StoreRefresher refreshes Google access tokens with the stored refresh
// token and saves the result. Other account kinds have nothing to refresh.
type StoreRefresher struct {
	accounts Accounts
	oauth    *oauth2.Config
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewStoreRefresher(accounts Accounts, cfg *oauth2.Config, logger *slog.Logger) *StoreRefresher {
	return &StoreRefresher{accounts: accounts, oauth: cfg, logger: logger}
}

func (r *StoreRefresher) RequestToken(ctx context.Context, email string) (string, error) {
	// Concurrent 401s for the same account would otherwise race to spend
	// the same refresh token.
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.accounts.GetByEmail(email)
	if err != nil {
		return "", fmt.Errorf("get account %s: %w", email, err)
	}
	if a == nil || a.Kind != model.AccountGoogle || a.RefreshToken == "" || r.oauth == nil {
		return "", nil
	}

	src := r.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: a.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("refresh token for %s: %w", email, err)
	}

	refresh := a.RefreshToken
	if tok.RefreshToken != "" {
		refresh = tok.RefreshToken
	}
	if err := r.accounts.UpdateTokens(a.ID, tok.AccessToken, refresh); err != nil {
		return "", fmt.Errorf("save token for %s: %w", email, err)
	}
	r.logger.Info("access token refreshed", "account", email)
	return tok.AccessToken, nil
}

// Linker runs the OAuth authorization-code flow that links a Google
// account. Pending states expire after ten minutes.
type Linker struct {
	oauth *oauth2.Config

	mu      sync.Mutex
	pending map[string]pendingLink
}

type pendingLink struct {
	email   string
	expires time.Time
}

const linkTTL = 10 * time.Minute

func NewLinker(cfg *oauth2.Config) *Linker {
	return &Linker{oauth: cfg, pending: make(map[string]pendingLink)}
}

// Start returns the consent URL for email.
func (l *Linker) Start(email string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(b)

	l.mu.Lock()
	now := time.Now()
	for k, p := range l.pending {
		if now.After(p.expires) {
			delete(l.pending, k)
		}
	}
	l.pending[state] = pendingLink{email: email, expires: now.Add(linkTTL)}
	l.mu.Unlock()

	return l.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Finish exchanges the callback code. It returns the email the flow was
// started for.
func (l *Linker) Finish(ctx context.Context, state, code string) (string, *oauth2.Token, error) {
	l.mu.Lock()
	p, ok := l.pending[state]
	delete(l.pending, state)
	l.mu.Unlock()
	if !ok || time.Now().After(p.expires) {
		return "", nil, fmt.Errorf("unknown or expired link state")
	}

	tok, err := l.oauth.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("exchange code: %w", err)
	}
	return p.email, tok, nil
}
