package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/desertthunder/tubesync/internal/shared"
)

// NewOAuthConfig builds the OAuth2 client for read-only YouTube access.
func NewOAuthConfig(cfg shared.YouTubeConfig) (*oauth2.Config, error) {
	if !cfg.HasOAuthClient() {
		return nil, fmt.Errorf("%w: youtube client_id and client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{youtube.YoutubeReadonlyScope},
		Endpoint:     endpoints.Google,
	}, nil
}

// AuthURL returns the consent URL. Offline access is requested so the token carries a refresh token.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// LoadToken reads a token previously written by [SaveToken].
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no token at %s", shared.ErrMissingCredentials, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if token.RefreshToken == "" && !token.Valid() {
		return nil, fmt.Errorf("%w: token at %s", shared.ErrNoRefreshToken, path)
	}
	return &token, nil
}

// SaveToken writes token as JSON readable only by the current user.
func SaveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// ClientOptions picks how the Data API client authenticates.
//
// A saved OAuth token wins when an OAuth client is configured; otherwise the API key is used.
func ClientOptions(ctx context.Context, cfg shared.YouTubeConfig) ([]option.ClientOption, error) {
	if cfg.HasOAuthClient() && cfg.TokenPath != "" {
		token, err := LoadToken(cfg.TokenPath)
		switch {
		case err == nil:
			conf, err := NewOAuthConfig(cfg)
			if err != nil {
				return nil, err
			}
			return []option.ClientOption{option.WithTokenSource(conf.TokenSource(ctx, token))}, nil
		case cfg.APIKey == "":
			return nil, err
		}
	}

	if cfg.APIKey != "" {
		return []option.ClientOption{option.WithAPIKey(cfg.APIKey)}, nil
	}
	return nil, fmt.Errorf("%w: set credentials.youtube.api_key or run `tubesync auth youtube`", shared.ErrMissingCredentials)
}
