package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Record is one entity returned by an accounting API.
type Record = map[string]any

// Shape tells which of the known response layouts a body had.
type Shape int

const (
	// ShapeRaw is anything not recognised; the whole body becomes one record.
	ShapeRaw Shape = iota
	// ShapeQueryResponse is the QuickBooks {"QueryResponse": {"Customer": [...]}} wrapper.
	ShapeQueryResponse
	// ShapeEntityArray is a top-level key holding a list, e.g. {"Invoices": [...]}.
	ShapeEntityArray
	// ShapeSingleObject is a top-level key holding one object, e.g. {"CompanyInfo": {...}}.
	ShapeSingleObject
)

func (s Shape) String() string {
	switch s {
	case ShapeQueryResponse:
		return "query_response"
	case ShapeEntityArray:
		return "entity_array"
	case ShapeSingleObject:
		return "single_object"
	default:
		return "raw"
	}
}

const queryResponseKey = "QueryResponse"

// Page is a parsed response body.
type Page struct {
	Shape   Shape
	Key     string
	Records []Record
}

// ErrInvalidJSON is returned by ParsePage for bodies that are not JSON.
var ErrInvalidJSON = errors.New("response body is not valid JSON")

// ParsePage resolves the response layout in one step.
//
// A QueryResponse wrapper always wins. Otherwise key is matched case-insensitively
// against the top-level fields; a named key that is absent yields an empty page.
// With an empty key the first field holding a non-empty array or an object is
// used, and failing that the whole body becomes a single raw record.
func ParsePage(body []byte, key string) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, fmt.Errorf("%w: %s", ErrInvalidJSON, preview(body))
	}
	root := gjson.ParseBytes(body)

	if !root.IsObject() {
		if root.IsArray() {
			recs, err := decodeArray(root)
			return Page{Shape: ShapeEntityArray, Key: key, Records: recs}, err
		}
		rec, err := decodeRaw(root)
		return Page{Shape: ShapeRaw, Key: key, Records: []Record{rec}}, err
	}

	if qr := root.Get(queryResponseKey); qr.IsObject() {
		return parseQueryResponse(qr)
	}

	if key != "" {
		name, val, ok := lookupFold(root, key)
		if !ok {
			return Page{Shape: ShapeRaw, Key: key}, nil
		}
		return fromValue(name, val)
	}

	var found Page
	var matched bool
	var err error
	root.ForEach(func(k, v gjson.Result) bool {
		if (v.IsArray() && len(v.Array()) > 0) || v.IsObject() {
			found, err = fromValue(k.String(), v)
			matched = true
			return false
		}
		return true
	})
	if matched {
		return found, err
	}
	rec, err := decodeRaw(root)
	return Page{Shape: ShapeRaw, Records: []Record{rec}}, err
}

func parseQueryResponse(qr gjson.Result) (Page, error) {
	page := Page{Shape: ShapeQueryResponse}
	var err error
	qr.ForEach(func(k, v gjson.Result) bool {
		if !v.IsArray() {
			return true
		}
		if page.Key == "" {
			page.Key = k.String()
		}
		var recs []Record
		recs, err = decodeArray(v)
		if err != nil {
			return false
		}
		page.Records = append(page.Records, recs...)
		return true
	})
	return page, err
}

func fromValue(name string, v gjson.Result) (Page, error) {
	switch {
	case v.IsArray():
		recs, err := decodeArray(v)
		return Page{Shape: ShapeEntityArray, Key: name, Records: recs}, err
	case v.IsObject():
		rec, err := decodeRaw(v)
		return Page{Shape: ShapeSingleObject, Key: name, Records: []Record{rec}}, err
	default:
		return Page{Shape: ShapeRaw, Key: name, Records: []Record{{name: scalar(v)}}}, nil
	}
}

func lookupFold(root gjson.Result, key string) (string, gjson.Result, bool) {
	var name string
	var val gjson.Result
	root.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			name, val = k.String(), v
			return false
		}
		if name == "" && strings.EqualFold(k.String(), key) {
			name, val = k.String(), v
		}
		return true
	})
	return name, val, name != ""
}

func decodeArray(arr gjson.Result) ([]Record, error) {
	items := arr.Array()
	recs := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := decodeRaw(item)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// decodeRaw decodes an object into a Record keeping numbers as json.Number.
// Non-object values are wrapped under "value".
func decodeRaw(v gjson.Result) (Record, error) {
	if !v.IsObject() {
		return Record{"value": scalar(v)}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(v.Raw)))
	dec.UseNumber()
	rec := Record{}
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}

func scalar(v gjson.Result) any {
	if v.IsArray() {
		var out any
		dec := json.NewDecoder(strings.NewReader(v.Raw))
		dec.UseNumber()
		if err := dec.Decode(&out); err == nil {
			return out
		}
		return v.Raw
	}
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.Number:
		return json.Number(v.Raw)
	case gjson.True, gjson.False:
		return v.Bool()
	default:
		return v.String()
	}
}
