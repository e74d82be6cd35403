// Package authsvc resolves usable access tokens for (user, service) pairs,
// refreshing expired tokens through the provider's refresh grant.
package authsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/donnahq/donna/internal/config"
	"github.com/donnahq/donna/internal/tokenstore"
)

// ErrUnavailable means no usable token exists and the user must (re-)authorize.
// Refresh failures fold into this error; they are logged, never propagated raw.
var ErrUnavailable = errors.New("token unavailable")

// External service names known to the assistant's tools.
const (
	ServiceCalendar = "google_calendar"
	ServiceEmail    = "gmail"
	ServiceTasks    = "ticktick"
)

// ProviderGoogle and ProviderTickTick name the OAuth providers in config.
const (
	ProviderGoogle   = "google"
	ProviderTickTick = "ticktick"
)

// defaultServiceProviders maps a service name to its OAuth provider.
var defaultServiceProviders = map[string]string{
	ServiceCalendar: ProviderGoogle,
	ServiceEmail:    ProviderGoogle,
	ServiceTasks:    ProviderTickTick,
}

// CredentialStore is the slice of tokenstore the auth service needs.
type CredentialStore interface {
	Get(ctx context.Context, userID, service string) (tokenstore.Credential, error)
	Put(ctx context.Context, userID, service string, params tokenstore.PutParams) (tokenstore.Credential, error)
}

// Service issues access tokens, refreshing and re-persisting expired ones.
type Service struct {
	store     CredentialStore
	providers map[string]*oauth2.Config
	services  map[string]string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the auth service from the configured OAuth providers.
func NewService(log *slog.Logger, store CredentialStore, oauthCfg map[string]config.OAuthConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	providers := make(map[string]*oauth2.Config, len(oauthCfg))
	for name, cfg := range oauthCfg {
		providers[strings.ToLower(strings.TrimSpace(name))] = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		}
	}
	return &Service{
		store:     store,
		providers: providers,
		services:  defaultServiceProviders,
		logger:    log.With(slog.String("service", "authsvc")),
		now:       time.Now,
	}
}

// ProviderFor returns the OAuth config backing the given service name.
func (s *Service) ProviderFor(service string) (*oauth2.Config, bool) {
	provider, ok := s.services[strings.ToLower(strings.TrimSpace(service))]
	if !ok {
		// Allow addressing a provider directly (e.g. "google" in OAuth callbacks).
		provider = strings.ToLower(strings.TrimSpace(service))
	}
	conf, ok := s.providers[provider]
	return conf, ok
}

// Token returns a usable access token for (userID, service).
// Missing credentials, failed refreshes, and still-expired records all return
// ErrUnavailable; persistence failures propagate as hard errors.
func (s *Service) Token(ctx context.Context, userID, service string) (string, error) {
	cred, err := s.store.Get(ctx, userID, service)
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			return "", ErrUnavailable
		}
		return "", err
	}

	if cred.Expired(s.now()) {
		cred, err = s.refresh(ctx, userID, service, cred)
		if err != nil {
			return "", err
		}
	}

	// A refresh that did not extend the expiry still counts as unavailable.
	if cred.Expired(s.now()) {
		return "", ErrUnavailable
	}
	return cred.AccessToken, nil
}

// refresh runs the provider's refresh-token grant and persists the result.
// Two concurrent refreshes for the same pair may race; the last write wins,
// which is tolerated because both writers hold valid provider responses.
func (s *Service) refresh(ctx context.Context, userID, service string, cred tokenstore.Credential) (tokenstore.Credential, error) {
	if strings.TrimSpace(cred.RefreshToken) == "" {
		return tokenstore.Credential{}, ErrUnavailable
	}
	conf, ok := s.ProviderFor(service)
	if !ok {
		s.logger.Warn("no oauth provider for service", slog.String("service", service))
		return tokenstore.Credential{}, ErrUnavailable
	}

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		s.logger.Warn("token refresh failed",
			slog.String("user_id", userID),
			slog.String("external_service", service),
			slog.Any("error", err),
		)
		return tokenstore.Credential{}, ErrUnavailable
	}

	extra := map[string]any{}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		extra["scope"] = scope
	}
	updated, err := s.store.Put(ctx, userID, service, tokenstore.PutParams{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		ExtraData:    extra,
	})
	if err != nil {
		return tokenstore.Credential{}, fmt.Errorf("persist refreshed credential: %w", err)
	}
	s.logger.Info("credential refreshed",
		slog.String("user_id", userID),
		slog.String("external_service", service),
		slog.Time("expires_at", updated.ExpiresAt),
	)
	return updated, nil
}
