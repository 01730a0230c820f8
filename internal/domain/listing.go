package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Endpoint is one source listing URL handled by a named scanner kind.
type Endpoint struct {
	Name string
	Kind string
	URL  string
}

// RawListing is a single record as returned by the adoption-platform widget.
type RawListing struct {
	ID                FlexInt   `json:"nid"`
	Name              string    `json:"name"`
	Location          string    `json:"location"`
	Adoptable         *FlexBool `json:"adoptable"`
	PublicURL         string    `json:"public_url"`
	IntakeDate        FlexInt   `json:"intake_date"`
	Birthday          FlexInt   `json:"birthday"`
	AgeGroup          *AgeLabel `json:"age_group"`
	Breed             string    `json:"breed"`
	SecondaryBreed    string    `json:"secondary_breed"`
	WeightGroup       string    `json:"weight_group"`
	PrimaryColor      string    `json:"primary_color"`
	SecondaryColor    string    `json:"secondary_color"`
	KennelDescription string    `json:"kennel_description"`

	// Endpoint names the listing the record came from.
	Endpoint string `json:"-"`
}

// AgeLabel is the nested age-group object of a listing record.
type AgeLabel struct {
	Name string `json:"name"`
}

// FlexInt decodes integers sent either as JSON numbers or numeric strings.
type FlexInt struct {
	Value int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexInt{}
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if strings.TrimSpace(raw) == "" {
		*f = FlexInt{}
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*f = FlexInt{Value: n, Valid: true}
		return nil
	}
	fl, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("flexint %q: %w", raw, err)
	}
	if math.IsNaN(fl) || math.IsInf(fl, 0) || fl != math.Trunc(fl) {
		return fmt.Errorf("flexint %q: not a whole number", raw)
	}
	// 2^63 is exactly representable; anything at or beyond it overflows int64.
	if fl >= math.MaxInt64 || fl < math.MinInt64 {
		return fmt.Errorf("flexint %q: out of range", raw)
	}
	*f = FlexInt{Value: int64(fl), Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// FlexBool decodes booleans sent as true/false, 0/1 or their string forms.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
	case float64:
		*b = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}
