package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultTokenURL is the Planetary Computer collection SAS token endpoint
const DefaultTokenURL = "https://planetarycomputer.microsoft.com/api/sas/v1/token/"

// Token is a collection-wide SAS token
type Token struct {
	Token  string `json:"token"`
	Expiry string `json:"msft:expiry"`
}

// Expired reports whether the token is past its expiry at now. A token
// whose expiry cannot be parsed counts as expired.
func (t Token) Expired(now time.Time) bool {
	exp, err := time.Parse(time.RFC3339, t.Expiry)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// TokenSigner appends collection SAS tokens to asset hrefs, fetching a new
// token only when the cached one has expired.
type TokenSigner struct {
	TokenURL   string
	HTTPClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	tokens map[string]Token
}

// NewTokenSigner returns a signer for tokenURL, which is suffixed with the
// collection id on each request.
func NewTokenSigner(tokenURL string) *TokenSigner {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &TokenSigner{
		TokenURL:   tokenURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		tokens:     make(map[string]Token),
	}
}

// Token returns a valid token for collection
func (s *TokenSigner) Token(ctx context.Context, collection string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens[collection]; ok && !tok.Expired(s.now()) {
		return tok, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.TokenURL+collection, nil)
	if err != nil {
		return Token{}, fmt.Errorf("error creating token request: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: token for %s: %v", ErrCatalogRequest, collection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: token for %s: %s", ErrCatalogRequest, collection, resp.Status)
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("unable to decode token response: %w", err)
	}
	s.tokens[collection] = tok
	return tok, nil
}

// SignDescriptor returns d with every asset href carrying the token of its
// collection
func (s *TokenSigner) SignDescriptor(ctx context.Context, d Descriptor) (Descriptor, error) {
	collection := d.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	tok, err := s.Token(ctx, collection)
	if err != nil {
		return d, err
	}
	d.Assets.Red = Sign(d.Assets.Red, tok)
	d.Assets.NIR = Sign(d.Assets.NIR, tok)
	d.Assets.SCL = Sign(d.Assets.SCL, tok)
	d.Assets.Preview = Sign(d.Assets.Preview, tok)
	return d, nil
}

// Sign appends the token query string to href
func Sign(href string, tok Token) string {
	if href == "" || tok.Token == "" {
		return href
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + tok.Token
}
