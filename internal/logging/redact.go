package logging

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Keys whose values never reach a log line in clear text. Matching is on the
// normalized key or its last underscore segment, so "wp_app_password" and
// "provider_api_key" are covered too.
var sensitiveKeys = []string{"api_key", "apikey", "app_password", "password", "authorization", "token", "secret"}

var authSchemes = []string{"Bearer ", "Basic "}

// RedactValue masks all but the last four characters of a credential. A
// leading auth scheme is kept.
func RedactValue(value string) string {
	value = strings.TrimSpace(value)
	for _, scheme := range authSchemes {
		if len(value) > len(scheme) && strings.EqualFold(value[:len(scheme)], scheme) {
			return scheme + tail(value[len(scheme):])
		}
	}
	return tail(value)
}

// RedactURL drops the password from a URL carrying userinfo.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// RedactAny walks decoded JSON-like values and masks sensitive fields.
func RedactAny(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if s, ok := item.(string); ok && isSecretKey(key) {
				out[key] = RedactValue(s)
			} else if isSecretKey(key) && item != nil {
				out[key] = "****"
			} else {
				out[key] = RedactAny(item)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for key, item := range v {
			if isSecretKey(key) {
				item = RedactValue(item)
			}
			out[key] = item
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			out = append(out, RedactAny(item))
		}
		return out
	case string:
		if strings.Contains(v, "@") && strings.Contains(v, "://") {
			return RedactURL(v)
		}
		return v
	default:
		return value
	}
}

// RedactJSON decodes raw RPC params for logging. Undecodable input is logged
// as trimmed text.
func RedactJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return RedactAny(decoded)
}

func isSecretKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, candidate := range sensitiveKeys {
		if key == candidate || strings.HasSuffix(key, "_"+candidate) {
			return true
		}
	}
	return false
}

func tail(value string) string {
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return "****"
	default:
		return "****" + value[len(value)-4:]
	}
}
