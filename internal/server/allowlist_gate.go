package server

import (
	"errors"
	"os"

	"github.com/sovrium/sovrium/internal/routing"
)

// routeClasses is the expected classification of every served route. The
// allowlist file must agree before the server starts; a route missing from
// the allowlist or declared under the wrong class is a deployment error, not
// something to discover in production traffic.
var routeClasses = map[string]routing.RouteClass{
	"/healthz":                         routing.RouteClassOps,
	"/api/tables/{table}/records":      routing.RouteClassPublicAPI,
	"/api/tables/{table}/records/{id}": routing.RouteClassPublicAPI,
	"/admin/api/schema:reload":         routing.RouteClassAdminAPI,
	"/admin/api/schema/tables":         routing.RouteClassAdminAPI,
	"/admin/api/schema/row-policies":   routing.RouteClassAdminAPI,
}

func verifyAllowlist() error {
	path := os.Getenv("ALLOWLIST_PATH")
	if path == "" {
		p, err := defaultAuthzPath("config/routing/allowlist.yaml")
		if err != nil {
			return err
		}
		path = p
	}

	classifier, err := routing.LoadClassifier(path, "server")
	if err != nil {
		return err
	}

	for route, want := range routeClasses {
		if got := classifier.Classify(route); got != want {
			return errors.New("server: allowlist classifies " + route + " as " + string(got) + ", want " + string(want))
		}
	}
	return nil
}
