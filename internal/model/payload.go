package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"
)

var (
	ErrNotJSON       = errors.New("content type is not JSON")
	ErrMalformedJSON = errors.New("malformed JSON body")
)

// Payload is one body received on /log-failure. Its shape is whatever the
// caller sent; nothing is validated beyond being JSON.
type Payload struct {
	ContentType string
	Raw         []byte
	Value       any
	RequestID   string
	ReceivedAt  time.Time
}

// StaleEntitiesReport is the body the stale-entity watcher sends.
type StaleEntitiesReport struct {
	StaleEntities []string `json:"stale_entities"`
}

// IsJSONContentType reports whether ct names application/json or an
// application/*+json type. Parameters such as charset are ignored.
func IsJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

// Parse decodes raw as a single JSON value. Numbers stay json.Number so they
// print exactly as sent.
func Parse(contentType string, raw []byte) (Payload, error) {
	if !IsJSONContentType(contentType) {
		return Payload{}, ErrNotJSON
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return Payload{}, fmt.Errorf("%w: empty body", ErrMalformedJSON)
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Payload{}, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedJSON)
	}

	return Payload{
		ContentType: contentType,
		Raw:         raw,
		Value:       v,
		ReceivedAt:  time.Now(),
	}, nil
}

// Pretty renders the payload as indented JSON without a trailing newline.
// Parsed payloads are re-indented from Raw, keeping the caller's key order and
// number text.
func (p Payload) Pretty() ([]byte, error) {
	var buf bytes.Buffer
	if len(p.Raw) > 0 {
		if err := json.Indent(&buf, bytes.TrimSpace(p.Raw), "", "  "); err != nil {
			return nil, fmt.Errorf("render payload: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p.Value); err != nil {
		return nil, fmt.Errorf("render payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// StaleEntities returns the ids when the payload looks like a
// StaleEntitiesReport. ok is false for any other shape.
func (p Payload) StaleEntities() (ids []string, ok bool) {
	obj, isObj := p.Value.(map[string]any)
	if !isObj {
		return nil, false
	}
	list, isList := obj["stale_entities"].([]any)
	if !isList {
		return nil, false
	}
	ids = make([]string, 0, len(list))
	for _, item := range list {
		s, isStr := item.(string)
		if !isStr {
			return nil, false
		}
		ids = append(ids, s)
	}
	return ids, true
}
