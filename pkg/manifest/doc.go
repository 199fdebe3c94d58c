// Package manifest parses multi-document YAML deployment manifests,
// including the resource quantity grammar ("100m" millicores, "512Mi" and
// "1Gi" memory). Quantities are integral; fractional values are rejected
// as invalid rather than rounded.
package manifest
