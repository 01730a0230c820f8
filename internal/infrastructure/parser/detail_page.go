package parser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// DetailPageFetcher re-scrapes an animal's public page and reads the embedded location.
type DetailPageFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	template string
}

var _ ports.DetailFetcher = (*DetailPageFetcher)(nil)

// NewDetailPageFetcher builds a fetcher limited to rps requests per second (unlimited when rps <= 0).
// template is used when an animal has no stored detail URL; "{id}" is replaced by the animal id.
func NewDetailPageFetcher(client *http.Client, rps float64, template string) *DetailPageFetcher {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &DetailPageFetcher{
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		template: template,
	}
}

// DetailURL resolves the page to fetch for animal.
func (d *DetailPageFetcher) DetailURL(animal domain.Animal) (string, error) {
	if u := strings.TrimSpace(animal.DetailURL); u != "" {
		return u, nil
	}
	if d.template == "" {
		return "", fmt.Errorf("animal %d has no detail url", animal.ID)
	}
	return strings.ReplaceAll(d.template, "{id}", strconv.FormatInt(animal.ID, 10)), nil
}

// FetchDetail downloads the page and extracts the first embedded object carrying "location".
func (d *DetailPageFetcher) FetchDetail(ctx context.Context, animal domain.Animal) (ports.DetailPage, error) {
	pageURL, err := d.DetailURL(animal)
	if err != nil {
		return ports.DetailPage{}, err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return ports.DetailPage{}, fmt.Errorf("detail rate limit: %w", err)
	}

	body, err := fetch(ctx, d.client, pageURL, "text/html")
	if err != nil {
		return ports.DetailPage{}, err
	}
	return parseDetailPage(body, animal.ID)
}

func parseDetailPage(body []byte, id int64) (ports.DetailPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ports.DetailPage{}, fmt.Errorf("%w: parse document: %v", ErrMalformedPayload, err)
	}

	obj, ok := findAnimalObject(embeddedValues(doc), "location", id)
	if !ok {
		return ports.DetailPage{}, fmt.Errorf("animal %d: %w", id, ErrNoEmbeddedJSON)
	}
	return ports.DetailPage{
		AnimalID: id,
		Location: stringField(obj, "location"),
		Name:     stringField(obj, "name"),
	}, nil
}
