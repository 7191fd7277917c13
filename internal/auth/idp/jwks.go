package idp

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// jwksTTL matches spec §4.1: "fetched per issuer URL, TTL 1 h".
const jwksTTL = time.Hour

// jwksCache wraps jwx's auto-refreshing cache, registered once per issuer URL
// and shared across verifications (spec §5: "single-writer on refresh,
// many-reader; stampede protection is not required").
type jwksCache struct {
	cache *jwk.Cache
	url   string
}

func newJWKSCache(ctx context.Context, jwksURL string) (*jwksCache, error) {
	cache, err := jwk.NewCache(ctx, jwk.NewFetcher())
	if err != nil {
		return nil, err
	}
	if err := cache.Register(ctx, jwksURL, jwk.WithMinInterval(jwksTTL)); err != nil {
		return nil, err
	}
	return &jwksCache{cache: cache, url: jwksURL}, nil
}

func (j *jwksCache) keySet(ctx context.Context) (jwk.Set, error) {
	return j.cache.Lookup(ctx, j.url)
}
