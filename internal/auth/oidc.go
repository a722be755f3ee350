package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"trackd/internal/config"
)

// ErrMissingIDToken 授权码交换的响应中没有 id_token。
var ErrMissingIDToken = errors.New("token response has no id_token")

// Identity 是从已验证的 ID Token 中取出的用户资料。
type Identity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// IdentityProvider is the part of an OIDC provider the sign-in handler needs.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// OIDCProvider implements IdentityProvider with go-oidc discovery and x/oauth2.
type OIDCProvider struct {
	oauth2   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider 通过 issuer 的 discovery 文档初始化 OIDC 客户端。
func NewOIDCProvider(ctx context.Context, cfg config.AuthConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("初始化 OIDC provider 失败: %w", err)
	}
	return &OIDCProvider{
		oauth2: oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
	}, nil
}

func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and verifies the ID token.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, ErrMissingIDToken
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, fmt.Errorf("decode id token claims: %w", err)
	}
	identity.Subject = idToken.Subject
	return &identity, nil
}
