package session

import (
	"fmt"
	"net/url"
	"strings"
)

const fallbackLayerName = "Loaded Layer"

// FallbackName derives a display name from a service URL, e.g.
// ".../services/Parks/FeatureServer/3" becomes "Parks (3)".
func FallbackName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fallbackLayerName
	}

	parts := strings.Split(u.Path, "/")
	idx := -1
	for i, p := range parts {
		if lp := strings.ToLower(p); lp == "featureserver" || lp == "mapserver" {
			idx = i
			break
		}
	}

	if idx > 1 {
		suffix := "Service"
		if idx+1 < len(parts) && parts[idx+1] != "" {
			suffix = parts[idx+1]
		}
		return fmt.Sprintf("%s (%s)", parts[idx-1], suffix)
	}
	if len(parts) >= 2 && parts[len(parts)-2] != "" {
		return parts[len(parts)-2]
	}
	return fallbackLayerName
}

// looksLikeService reports whether the URL points at a Feature or Map server.
func looksLikeService(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "/featureserver") || strings.Contains(lower, "/mapserver")
}
