package currency

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DefaultRatesURL is the public endpoint HTTPSource queries. %s is the base currency.
const DefaultRatesURL = "https://api.exchangerate-api.com/v4/latest/%s"

// HTTPSource fetches rates from an exchangerate-api compatible endpoint.
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if url == "" {
		url = DefaultRatesURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *HTTPSource) Latest(ctx context.Context, base string) (Quote, error) {
	u := s.url
	if strings.Contains(u, "%s") {
		u = fmt.Sprintf(u, base)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching rates for %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fetching rates for %s: unexpected status %d", base, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decoding rates for %s: %w", base, err)
	}

	q := Quote{Base: base, Rates: body.Rates}
	if body.Date != "" {
		if d, err := time.Parse(time.DateOnly, body.Date); err == nil {
			q.Date = d
		}
	}
	return q, nil
}

// StaticSource serves fixed rates. It backs offline deployments and tests.
type StaticSource map[string]decimal.Decimal

func (s StaticSource) Latest(_ context.Context, base string) (Quote, error) {
	return Quote{Base: base, Rates: s}, nil
}
