package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultTokenURL = "https://www.reddit.com/api/v1/access_token"

// Credentials are the "script" app credentials of the moderator account.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	TokenURL     string
	UserAgent    string
	Timeout      time.Duration
}

// NewOAuthHTTPClient returns an HTTP client that authorizes every request with a
// bearer token from the password grant. Reddit does not issue refresh tokens for
// this grant, so an expired token triggers a fresh password exchange.
func NewOAuthHTTPClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, errors.New("reddit: client id and secret are required")
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.New("reddit: username and password are required")
	}
	if creds.TokenURL == "" {
		creds.TokenURL = defaultTokenURL
	}
	if creds.UserAgent == "" {
		creds.UserAgent = defaultUserAgent
	}

	base := &http.Client{
		Timeout:   creds.Timeout,
		Transport: &userAgentTransport{userAgent: creds.UserAgent, base: http.DefaultTransport},
	}
	// The token exchange goes through base so Reddit sees the User-Agent there too.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  creds.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	src := oauth2.ReuseTokenSource(nil, &passwordTokenSource{
		ctx:      ctx,
		cfg:      cfg,
		username: creds.Username,
		password: creds.Password,
	})

	client := oauth2.NewClient(ctx, src)
	client.Timeout = creds.Timeout
	return client, nil
}

type passwordTokenSource struct {
	ctx      context.Context
	cfg      *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.cfg.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("reddit password grant: %w", err)
	}
	return tok, nil
}

type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
