package auth

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
)

// Issuer mints bearer tokens for a subject.
type Issuer interface {
	IssueServiceToken(ctx context.Context, subject string) (IssuedToken, error)
}

type issuerSource struct {
	issuer  Issuer
	subject string
}

func (s issuerSource) Token() (*oauth2.Token, error) {
	issued, err := s.issuer.IssueServiceToken(context.Background(), s.subject)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: issued.Token, TokenType: "Bearer", Expiry: issued.ExpiresAt}, nil
}

// NewTokenSource supplies bearer credentials for outbound calls. A static token takes
// precedence; otherwise tokens are minted by issuer and reused until shortly before expiry.
// It returns nil when neither is available.
func NewTokenSource(staticToken string, issuer Issuer, subject string) oauth2.TokenSource {
	if token := strings.TrimSpace(staticToken); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
	if issuer == nil {
		return nil
	}
	return oauth2.ReuseTokenSource(nil, issuerSource{issuer: issuer, subject: subject})
}
