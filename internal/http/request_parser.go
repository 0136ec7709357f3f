// Package http exposes the expense tracker as a JSON API.
//
// This file turns request bodies (JSON or form-encoded) and path values into
// domain values.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spesa/internal/core"
	"spesa/internal/query"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 10 << 20
)

var (
	errInvalidBody = errors.New("invalid request body")
	errInvalidID   = errors.New("invalid expense id")
)

// RequestBodyParser reads a body once and exposes its fields whether it was
// sent as JSON or as form data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return p
}

// Parse decodes the body. JSON numbers are kept as their literal text so
// amounts never pass through float64.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		p.err = fmt.Errorf("%w: %w", errInvalidBody, p.err)
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		return p.err
	}
	if trimmed[0] == '[' {
		p.err = fmt.Errorf("%w: expected an object", errInvalidBody)
		return p.err
	}

	p.formData, p.err = url.ParseQuery(string(trimmed))
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errInvalidBody, p.err)
	}
	return p.err
}

// Has reports whether key was present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a trimmed, sanitized string value.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput drops control characters except tab and newlines, then trims.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// ExpenseFromBody builds a record from the submitted fields. Fields that were
// not submitted are taken from base; base carries the create defaults or the
// stored record on update.
func ExpenseFromBody(p *RequestBodyParser, base core.Expense) (core.Expense, error) {
	if err := p.Parse(); err != nil {
		return core.Expense{}, err
	}

	e := base
	if p.Has("title") {
		e.Title = p.Get("title")
	}
	if p.Has("amount") {
		amount, err := core.ParseAmount(p.Get("amount"))
		if err != nil {
			return core.Expense{}, &core.ValidationError{Field: "amount", Err: err}
		}
		e.Amount = amount
	}
	if p.Has("currency") {
		e.Currency = core.Currency(strings.ToUpper(p.Get("currency")))
	}
	if p.Has("date") {
		d, err := core.ParseDate(p.Get("date"))
		if err != nil {
			return core.Expense{}, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		}
		e.Date = d
	}
	if p.Has("category") {
		e.Category = core.Category(strings.ToLower(p.Get("category")))
	}
	return e, nil
}

// NewExpenseDefaults are the values a blank create form starts from.
func NewExpenseDefaults(today core.Date) core.Expense {
	return core.Expense{Currency: core.RUB, Date: today, Category: core.Food}
}

// ParseFilterPatch decodes a partial filter update.
func ParseFilterPatch(r *http.Request) (query.FilterPatch, error) {
	var patch query.FilterPatch
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		if errors.Is(err, core.ErrInvalidDate) {
			return patch, &core.ValidationError{Field: "date", Err: err}
		}
		return patch, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return patch, nil
}

// PathID parses the {id} path value.
func PathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// ReadImportBody returns the uploaded backup file. A multipart upload is
// read from its "file" part; anything else is taken as the raw body.
func ReadImportBody(r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(nil, r.Body, maxImportBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return readAll(body)
	}

	r.Body = body
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file part", errInvalidBody)
	}
	defer f.Close()
	return readAll(f)
}

func readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	return b, nil
}
