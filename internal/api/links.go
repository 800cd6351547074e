package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/session>; rel="session"`,
		`</api/v1/endpoints>; rel="endpoints"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/store/keys>; rel="store"`,
	},
	"/api/v1/endpoints": {
		`</api/v1/session/load>; rel="load"`,
	},
	"/api/v1/session": {
		`</api/v1/session/features>; rel="features"`,
		`</api/v1/session/filter>; rel="filter"`,
		`</api/v1/session/style>; rel="style"`,
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/session/load": {
		`</api/v1/session>; rel="status"`,
	},
	"/api/v1/session/copy": {
		`</api/v1/drawn>; rel="drawn"`,
	},
	"/api/v1/drawn": {
		`</api/v1/drawn/export>; rel="export"`,
		`</api/v1/drawn/import>; rel="import"`,
		`</api/v1/map>; rel="map"`,
	},
	"/api/v1/drawn/{id}": {
		`</api/v1/drawn>; rel="collection"`,
	},
	"/api/v1/map": {
		`</api/v1/session>; rel="session"`,
		`</api/v1/drawn>; rel="drawn"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
