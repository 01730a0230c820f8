package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"

	"ShelterSync/internal/scanner"
)

// WidgetScanner reads the adoption-platform widget feed, a JSON document of listing records.
type WidgetScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*WidgetScanner)(nil)

// NewWidgetScanner wires an HTTP client; nil gets one with DefaultTimeout.
func NewWidgetScanner(client *http.Client) *WidgetScanner {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	return &WidgetScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (w *WidgetScanner) Name() string {
	return "widget"
}

// Scan fetches the endpoint and decodes its records.
func (w *WidgetScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	body, err := fetch(ctx, w.client, req.Endpoint.URL, "application/json")
	if err != nil {
		return scanner.Result{}, err
	}
	return decodeListings(body, req.Endpoint.Name)
}

// PageScanner reads an HTML listing page whose records are embedded as JSON in a script tag.
type PageScanner struct {
	client *http.Client
}

var _ scanner.Scanner = (*PageScanner)(nil)

// NewPageScanner wires an HTTP client; nil gets one with DefaultTimeout.
func NewPageScanner(client *http.Client) *PageScanner {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	return &PageScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (p *PageScanner) Name() string {
	return "page"
}

// Scan fetches the page and decodes the first embedded array of listing records.
func (p *PageScanner) Scan(ctx context.Context, req scanner.Request) (scanner.Result, error) {
	body, err := fetch(ctx, p.client, req.Endpoint.URL, "text/html")
	if err != nil {
		return scanner.Result{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scanner.Result{}, fmt.Errorf("%w: parse document: %v", ErrMalformedPayload, err)
	}

	for _, value := range embeddedValues(doc) {
		records, ok := findListingArray(value)
		if !ok {
			continue
		}
		raw, err := json.Marshal(records)
		if err != nil {
			return scanner.Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return decodeListings(raw, req.Endpoint.Name)
	}
	return scanner.Result{}, ErrNoEmbeddedJSON
}
