package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/fetch"
)

const DefaultIndexURL = "https://pypi.org"

// PyPI reads requires_dist from the JSON API of a PyPI-compatible index.
type PyPI struct {
	BaseURL string
	Fetcher *fetch.Client
}

func NewPyPI(baseURL string, fetcher *fetch.Client) *PyPI {
	if baseURL == "" {
		baseURL = DefaultIndexURL
	}
	return &PyPI{BaseURL: strings.TrimRight(baseURL, "/"), Fetcher: fetcher}
}

type pypiRelease struct {
	Info struct {
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`
}

func (p *PyPI) FetchDependencies(ctx context.Context, q Query) ([]string, error) {
	if q.Locator != "" {
		log.FromContext(ctx).Info("dependencies of locator requirements are not expanded", "package", q.Name, "locator", q.Locator)
		return nil, nil
	}
	u := fmt.Sprintf("%s/pypi/%s/%s/json", p.BaseURL, url.PathEscape(q.Name), url.PathEscape(q.Version))
	body, err := p.Fetcher.Get(ctx, u)
	if err != nil {
		if fetch.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Key())
		}
		return nil, err
	}
	var rel pypiRelease
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	return rel.Info.RequiresDist, nil
}
