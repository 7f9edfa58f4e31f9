// Package dispatcher runs dispatch requests through the handler pipeline:
// resolve, validate, process and build the response envelope.
package dispatcher

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

// Request is a validated dispatch request. Build it with ValidateRequest or
// ParseRequest; it is not modified by the dispatcher.
type Request struct {
	// ID correlates the request with its dispatched event. Optional.
	ID       string                 `json:"id,omitempty"`
	Entity   string                 `json:"entity"`
	Action   string                 `json:"action"`
	Method   string                 `json:"method"`
	EntityID string                 `json:"entityId,omitempty"`
	Data     map[string]interface{} `json:"data"`
	Headers  map[string]string      `json:"headers"`
	Cookies  map[string]string      `json:"cookies"`
}

// PathParameters returns the path parameter list built from EntityID.
func (r *Request) PathParameters() []string {
	if r.EntityID == "" {
		return []string{}
	}
	return []string{r.EntityID}
}

// ValidateRequest checks an arbitrary candidate and returns the Request it
// describes. Candidates are raw JSON ([]byte, json.RawMessage) or any value
// that marshals to a JSON object, such as a decoded map[string]interface{}.
func ValidateRequest(candidate interface{}) (*Request, error) {
	var raw []byte
	switch c := candidate.(type) {
	case nil:
		return nil, invalidRequestData()
	case []byte:
		raw = c
	case json.RawMessage:
		raw = c
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return nil, invalidRequestData()
		}
		raw = b
	}
	return ParseRequest(raw)
}

// ParseRequest validates a raw JSON request. Checks run in order and the
// first failure wins: object, entity, action, method, headers, cookies, data.
// Errors are *apiview.APIViewError.
func ParseRequest(raw []byte) (*Request, error) {
	if !gjson.ValidBytes(raw) {
		return nil, invalidRequestData()
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, invalidRequestData()
	}

	fields := doc.Map()

	entity, err := keySegment(fields, "entity", apiview.InvalidEntity)
	if err != nil {
		return nil, err
	}
	action, err := keySegment(fields, "action", apiview.InvalidAction)
	if err != nil {
		return nil, err
	}
	method, err := keySegment(fields, "method", apiview.InvalidMethod)
	if err != nil {
		return nil, err
	}

	headers, ok := optionalObject(fields, "headers")
	if !ok {
		return nil, apiview.NewError(apiview.InvalidHeaders, "headers must be an Object")
	}
	cookies, ok := optionalObject(fields, "cookies")
	if !ok {
		return nil, apiview.NewError(apiview.InvalidCookies, "cookies must be an Object")
	}
	data, ok := optionalObject(fields, "data")
	if !ok {
		return nil, apiview.NewError(apiview.InvalidRequestData, "data must be an Object")
	}

	req := &Request{
		Entity:   entity,
		Action:   action,
		Method:   method,
		EntityID: scalar(fields["entityId"]),
		Data:     map[string]interface{}{},
		Headers:  stringMap(headers),
		Cookies:  stringMap(cookies),
	}
	if id := fields["id"]; id.Type == gjson.String {
		req.ID = id.Str
	}
	if data.Exists() {
		if err := decodeObject(data.Raw, &req.Data); err != nil {
			return nil, apiview.NewError(apiview.InvalidRequestData, "data must be an Object")
		}
	}
	return req, nil
}

// decodeObject decodes a JSON object keeping numbers as json.Number, so
// 64-bit integers survive unchanged.
func decodeObject(raw string, out *map[string]interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	return dec.Decode(out)
}

func invalidRequestData() error {
	return apiview.NewError(apiview.InvalidRequestData, "request data must be an Object")
}

// keySegment reads a required handler key segment.
func keySegment(fields map[string]gjson.Result, key string, code apiview.Code) (string, error) {
	v, ok := requiredString(fields, key)
	if !ok {
		return "", apiview.NewError(code, "%s must be a String", key)
	}
	if !fetcher.ValidSegment(v) {
		return "", apiview.NewError(code, "%s must be a single path segment", key)
	}
	return v, nil
}

func requiredString(fields map[string]gjson.Result, key string) (string, bool) {
	v, ok := fields[key]
	if !ok || v.Type != gjson.String || v.Str == "" {
		return "", false
	}
	return v.Str, true
}

// optionalObject returns the object at key. Missing and null values are
// accepted and reported as a non-existing result.
func optionalObject(fields map[string]gjson.Result, key string) (gjson.Result, bool) {
	v, ok := fields[key]
	if !ok || v.Type == gjson.Null {
		return gjson.Result{}, true
	}
	if !v.IsObject() {
		return gjson.Result{}, false
	}
	return v, true
}

func stringMap(obj gjson.Result) map[string]string {
	out := make(map[string]string)
	if !obj.Exists() {
		return out
	}
	obj.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	return out
}

func scalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Number, gjson.True:
		return v.Raw
	default:
		return ""
	}
}
