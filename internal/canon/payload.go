package canon

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/roach88/nowhere/internal/ir"
)

// Headers canonicalizes an http.Header-shaped map: names lowercased and
// trimmed, values trimmed, one entry per value, sorted by (name, value).
func Headers(h map[string][]string) []ir.Header {
	out := make([]ir.Header, 0, len(h))
	for name, values := range h {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		for _, v := range values {
			out = append(out, ir.Header{Name: n, Value: strings.TrimSpace(v)})
		}
	}
	sortHeaders(out)
	return out
}

// NormalizeHeaders applies the Headers rules to an existing header list.
func NormalizeHeaders(hs []ir.Header) []ir.Header {
	out := make([]ir.Header, 0, len(hs))
	for _, h := range hs {
		n := strings.ToLower(strings.TrimSpace(h.Name))
		if n == "" {
			continue
		}
		out = append(out, ir.Header{Name: n, Value: strings.TrimSpace(h.Value)})
	}
	sortHeaders(out)
	return out
}

func sortHeaders(hs []ir.Header) {
	slices.SortFunc(hs, func(a, b ir.Header) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
}

// Payload returns the canonical RawPayload for a collaborator response.
// The body is kept byte-for-byte; only status and headers are normalized.
func Payload(p ir.RawPayload) ir.RawPayload {
	return ir.RawPayload{
		Status:  p.Status,
		Headers: NormalizeHeaders(p.Headers),
		Body:    slices.Clone(p.Body),
	}
}

// EncodeEnvelope serializes a payload into the byte-stable blob form:
// canonical JSON {"body": base64, "headers": [[name, value]...], "status": n}.
func EncodeEnvelope(p ir.RawPayload) ([]byte, error) {
	p = Payload(p)
	headers := make(ir.IRArray, len(p.Headers))
	for i, h := range p.Headers {
		headers[i] = ir.IRArray{ir.IRString(h.Name), ir.IRString(h.Value)}
	}
	obj := ir.IRObject{
		"status":  ir.IRInt(p.Status),
		"headers": headers,
		"body":    ir.IRString(base64.StdEncoding.EncodeToString(p.Body)),
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return nil, malformed("headers", "cannot encode envelope", err)
	}
	return data, nil
}

type envelope struct {
	Status  *int        `json:"status"`
	Headers [][2]string `json:"headers"`
	Body    *string     `json:"body"`
}

// DecodeEnvelope parses the EncodeEnvelope form back into a payload.
func DecodeEnvelope(data []byte) (ir.RawPayload, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return ir.RawPayload{}, malformed("envelope", "unparsable", err)
	}
	if env.Status == nil || env.Body == nil {
		return ir.RawPayload{}, malformed("envelope", "missing status or body", nil)
	}
	body, err := base64.StdEncoding.DecodeString(*env.Body)
	if err != nil {
		return ir.RawPayload{}, malformed("envelope.body", "invalid base64", err)
	}
	headers := make([]ir.Header, len(env.Headers))
	for i, h := range env.Headers {
		headers[i] = ir.Header{Name: h[0], Value: h[1]}
	}
	return ir.RawPayload{Status: *env.Status, Headers: headers, Body: body}, nil
}

// ParseBody strictly parses a JSON body into IR values. Strings are NFC
// normalized, integral numbers become integers, fractional numbers become
// decimal strings and nulls are dropped. Trailing data is rejected.
func ParseBody(body []byte) (ir.IRValue, error) {
	if !utf8.Valid(body) {
		return nil, malformed("body", "invalid UTF-8", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("body", "unparsable JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("body", "trailing data after JSON value", nil)
	}

	val, keep, err := normalizeJSON("body", raw)
	if err != nil {
		return nil, err
	}
	if !keep {
		return ir.IRObject{}, nil
	}
	return val, nil
}

// normalizeJSON differs from normalizeValue in that object keys and strings
// keep their case and whitespace: the projector decides what is semantic.
func normalizeJSON(path string, v any) (ir.IRValue, bool, error) {
	switch x := v.(type) {
	case map[string]any:
		obj := make(ir.IRObject, len(x))
		for k, e := range x {
			val, keep, err := normalizeJSON(path+"."+k, e)
			if err != nil {
				return nil, false, err
			}
			if keep {
				obj[k] = val
			}
		}
		return obj, true, nil
	case []any:
		arr := make(ir.IRArray, 0, len(x))
		for i, e := range x {
			val, keep, err := normalizeJSON(fmt.Sprintf("%s[%d]", path, i), e)
			if err != nil {
				return nil, false, err
			}
			if keep {
				arr = append(arr, val)
			}
		}
		return arr, true, nil
	case string:
		return ir.IRString(x), true, nil
	default:
		return normalizeValue(path, v)
	}
}
