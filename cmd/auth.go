package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tubesync/internal/server"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
)

const authTimeout = 5 * time.Minute

// AuthYouTube runs the OAuth2 authorization code flow against a local callback server and saves the token.
func (r *Runner) AuthYouTube(ctx context.Context, cmd *cli.Command) error {
	yt := r.config.Credentials.YouTube
	conf, err := services.NewOAuthConfig(yt)
	if err != nil {
		return err
	}
	if yt.TokenPath == "" {
		return fmt.Errorf("%w: credentials.youtube.token_path", shared.ErrInvalidConfig)
	}

	redirect, err := url.Parse(conf.RedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, conf.RedirectURL)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	handler := server.NewOAuthHandler(conf, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.Logging(r.logger))
	router.Handler(handler)

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	srv := server.New(redirect.Host, router, r.logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	authURL := services.AuthURL(conf, state)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize tubesync:\n\n%s\n\n", authURL)
	} else if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser", "error", err)
		r.writePlain("Open this URL to authorize tubesync:\n\n%s\n\n", authURL)
	} else {
		r.writePlain("Opening browser for authorization...\n")
	}

	r.logger.Info("waiting for OAuth callback", "addr", srv.Addr())

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("callback server failed: %w", err)
		}
		return fmt.Errorf("%w: no authorization received", shared.ErrTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: no authorization received within %s", shared.ErrTimeout, authTimeout)
	}

	cancel()
	<-errc

	if result.Err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Err)
	}
	if result.Token.RefreshToken == "" {
		r.logger.Warn("token has no refresh token; you may need to re-authorize when it expires")
	}

	if err := services.SaveToken(yt.TokenPath, result.Token); err != nil {
		return err
	}

	r.logger.Info("authentication successful", "token", yt.TokenPath)
	r.writePlain("✓ YouTube authorization saved to %s\n", yt.TokenPath)
	return nil
}
