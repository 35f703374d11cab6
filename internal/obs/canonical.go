package obs

import "strings"

// CanonicalPath collapses resource identifiers in request paths so metric
// label cardinality stays bounded.
//
//	/v1/collections/READWRITE        -> /v1/collections/:name
//	/v1/targets/APP/42/grants        -> /v1/targets/:type/:id/grants
func CanonicalPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "v1" {
		return path
	}
	switch segments[1] {
	case "collections":
		if len(segments) == 3 {
			return "/v1/collections/:name"
		}
	case "targets":
		if len(segments) == 4 && segments[3] == "grants" {
			return "/v1/targets/:type/:id/grants"
		}
	}
	return path
}
