package notebook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAuthorityURL = "https://login.microsoftonline.com"
	graphScope          = "https://graph.microsoft.com/.default"
	// deviceTenant is used for the device flow when no tenant is configured.
	deviceTenant = "organizations"
)

// Credentials is the Azure app registration used to reach Graph.
type Credentials struct {
	ClientID     string
	TenantID     string
	ClientSecret string
	// AuthorityURL overrides DefaultAuthorityURL.
	AuthorityURL string
}

// DevicePrompt shows the user where to enter the device code.
type DevicePrompt func(verificationURI, userCode string)

// Authenticate exchanges creds for a Graph token source. With a secret and a
// tenant it uses the client-credentials flow; otherwise it runs the
// interactive device-code flow and calls prompt. A first token is fetched
// eagerly so that bad credentials fail here rather than on first use.
func Authenticate(ctx context.Context, creds Credentials, prompt DevicePrompt, logger *slog.Logger) (oauth2.TokenSource, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	authority := strings.TrimRight(creds.AuthorityURL, "/")
	if authority == "" {
		authority = DefaultAuthorityURL
	}

	var ts oauth2.TokenSource
	if creds.ClientSecret != "" && creds.TenantID != "" {
		cc := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, creds.TenantID),
			Scopes:       []string{graphScope},
		}
		ts = cc.TokenSource(ctx)
		logger.Info("graph auth: client credentials", "tenant", creds.TenantID)
	} else {
		tenant := creds.TenantID
		if tenant == "" {
			tenant = deviceTenant
		}
		base := fmt.Sprintf("%s/%s/oauth2/v2.0", authority, tenant)
		cfg := &oauth2.Config{
			ClientID: creds.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/authorize",
				TokenURL:      base + "/token",
				DeviceAuthURL: base + "/devicecode",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
			Scopes: []string{graphScope, "offline_access"},
		}
		da, err := cfg.DeviceAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("device authorization: %w", err)
		}
		if prompt != nil {
			prompt(da.VerificationURI, da.UserCode)
		}
		logger.Info("graph auth: waiting for device code confirmation", "verification_uri", da.VerificationURI)
		tok, err := cfg.DeviceAccessToken(ctx, da)
		if err != nil {
			return nil, fmt.Errorf("device access token: %w", err)
		}
		ts = cfg.TokenSource(context.Background(), tok)
	}

	ts = oauth2.ReuseTokenSource(nil, ts)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	return ts, nil
}
