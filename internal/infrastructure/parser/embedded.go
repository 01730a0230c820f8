package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/scanner"
)

// ErrNoEmbeddedJSON is returned when a page carries no usable JSON blob.
var ErrNoEmbeddedJSON = errors.New("no embedded json found")

// embeddedValues decodes every JSON object or array found inside the page's script tags.
func embeddedValues(doc *goquery.Document) []any {
	var values []any
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		values = append(values, scanJSON(s.Text())...)
	})
	return values
}

// scanJSON pulls the top-level JSON values out of arbitrary script text such as
// `window.__DATA__ = {...};`.
func scanJSON(text string) []any {
	var values []any
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		values = append(values, v)
		i += int(dec.InputOffset()) - 1
	}
	return values
}

// walkObjects visits every object under v breadth-first, map keys in sorted order,
// until visit returns false.
func walkObjects(v any, visit func(map[string]any) bool) {
	queue := []any{v}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		switch t := node.(type) {
		case map[string]any:
			if !visit(t) {
				return
			}
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, t[k])
			}
		case []any:
			queue = append(queue, t...)
		}
	}
}

// findAnimalObject returns the object holding key that belongs to animal id. An object whose
// nid or id equals id wins; otherwise the shallowest object holding key is used.
func findAnimalObject(values []any, key string, id int64) (map[string]any, bool) {
	var fallback map[string]any
	for _, value := range values {
		var match map[string]any
		walkObjects(value, func(obj map[string]any) bool {
			if _, ok := obj[key]; !ok {
				return true
			}
			if hasID(obj, id) {
				match = obj
				return false
			}
			if fallback == nil {
				fallback = obj
			}
			return true
		})
		if match != nil {
			return match, true
		}
	}
	return fallback, fallback != nil
}

func hasID(obj map[string]any, id int64) bool {
	for _, key := range []string{"nid", "id"} {
		switch v := obj[key].(type) {
		case float64:
			if v == float64(id) {
				return true
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n == id {
				return true
			}
		}
	}
	return false
}

// findListingArray returns the first array, breadth-first, whose elements are listing records.
func findListingArray(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok && isListingArray(arr) {
		return arr, true
	}
	var found []any
	walkObjects(v, func(obj map[string]any) bool {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if arr, ok := obj[k].([]any); ok && isListingArray(arr) {
				found = arr
				return false
			}
		}
		return true
	})
	return found, found != nil
}

func isListingArray(arr []any) bool {
	if len(arr) == 0 {
		return false
	}
	first, ok := arr[0].(map[string]any)
	if !ok {
		return false
	}
	_, ok = first["nid"]
	return ok
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// decodeListings accepts a bare array or an object wrapping it under "animals" or "data".
// Records are decoded one by one so a single bad record does not drop the page.
func decodeListings(body []byte, endpoint string) (scanner.Result, error) {
	body = bytes.TrimSpace(body)
	var records []json.RawMessage

	switch {
	case len(body) == 0:
		return scanner.Result{}, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	case body[0] == '[':
		if err := json.Unmarshal(body, &records); err != nil {
			return scanner.Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	case body[0] == '{':
		var envelope struct {
			Animals []json.RawMessage `json:"animals"`
			Data    []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return scanner.Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		records = envelope.Animals
		if records == nil {
			records = envelope.Data
		}
	default:
		return scanner.Result{}, fmt.Errorf("%w: unexpected leading %q", ErrMalformedPayload, body[0])
	}

	result := scanner.Result{Listings: make([]domain.RawListing, 0, len(records))}
	for i, record := range records {
		var listing domain.RawListing
		if err := json.Unmarshal(record, &listing); err != nil {
			result.Rejected = append(result.Rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		listing.Endpoint = endpoint
		result.Listings = append(result.Listings, listing)
	}
	return result, nil
}
