// Package observability provides metrics and attribute helpers.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrFamily  = "family"
	attrSuccess = "success"
	attrOnline  = "online"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func familyAttr(family string) attribute.KeyValue {
	return attribute.String(attrFamily, family)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

func onlineAttr(online bool) attribute.KeyValue {
	return attribute.Bool(attrOnline, online)
}

// normalizePath replaces dynamic path segments with placeholders to keep
// metric cardinality bounded: /v1/jobs/abc123/send -> /v1/jobs/{jobId}/send.
func normalizePath(path string) string {
	normalize := func(prefix, placeholder string) (string, bool) {
		if !strings.HasPrefix(path, prefix) || len(path) == len(prefix) {
			return "", false
		}
		rest := path[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return prefix + placeholder + rest[idx:], true
		}
		return prefix + placeholder, true
	}

	if p, ok := normalize("/v1/jobs/", "{jobId}"); ok {
		return p
	}
	if p, ok := normalize("/v1/machines/", "{machineId}"); ok {
		return p
	}
	return path
}
