package api

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"

	"github.com/go-resty/resty/v2"
)

// applyParams writes req.Params onto the outgoing resty request
func applyParams(r *resty.Request, req Request) error {
	if len(req.Params) == 0 {
		return nil
	}

	switch req.Encoding {
	case JSONEncoding:
		// caller headers are merged after encoding and win over the default
		if r.Header.Get("Content-Type") == "" && !hasHeader(req.Headers, "Content-Type") {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(req.Params)
	case URLEncoding:
		values := EncodeValues(req.Params)
		switch req.method() {
		case http.MethodGet, http.MethodHead, http.MethodDelete:
			r.SetQueryParamsFromValues(values)
		default:
			r.SetFormDataFromValues(values)
		}
	case QueryEncoding:
		r.SetQueryParamsFromValues(EncodeValues(req.Params))
	default:
		return fmt.Errorf("unknown parameter encoding %d", req.Encoding)
	}
	return nil
}

func hasHeader(headers map[string]string, key string) bool {
	for k := range headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(key) {
			return true
		}
	}
	return false
}

// EncodeValues flattens params the way form encoders expect: nested maps
// become key[sub], slices become key[], booleans become 1 or 0.
func EncodeValues(params map[string]interface{}) url.Values {
	values := url.Values{}
	for _, key := range sortedKeys(params) {
		addComponent(values, key, params[key])
	}
	return values
}

func addComponent(values url.Values, key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		values.Add(key, "")
	case bool:
		if v {
			values.Add(key, "1")
		} else {
			values.Add(key, "0")
		}
	case map[string]interface{}:
		for _, sub := range sortedKeys(v) {
			addComponent(values, key+"["+sub+"]", v[sub])
		}
	case map[string]string:
		nested := make(map[string]interface{}, len(v))
		for k, s := range v {
			nested[k] = s
		}
		addComponent(values, key, nested)
	case []interface{}:
		for _, item := range v {
			addComponent(values, key+"[]", item)
		}
	case string:
		values.Add(key, v)
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				addComponent(values, key+"[]", rv.Index(i).Interface())
			}
			return
		}
		values.Add(key, fmt.Sprint(value))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
