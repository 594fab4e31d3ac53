package routing

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

type RouteClass string

const (
	RouteClassPublicAPI RouteClass = "public_api"
	RouteClassAdminAPI  RouteClass = "admin_api"
	RouteClassOps       RouteClass = "ops"
)

// Classifier resolves a request path to its declared route class. It is built
// straight from the allowlist YAML for one entrypoint; anything the file does
// not list classifies as public API, which only matters for error rendering
// because unlisted routes are unreachable anyway.
type Classifier struct {
	entrypoint string
	exact      map[string]RouteClass
	patterns   []patternRoute
}

type patternRoute struct {
	pattern PathPattern
	rc      RouteClass
}

// The YAML shape is internal to the classifier; callers only see RouteClass.
type allowlistDecl struct {
	Version     int                       `yaml:"version"`
	Entrypoints map[string]entrypointDecl `yaml:"entrypoints"`
}

type entrypointDecl struct {
	Routes []routeDecl `yaml:"routes"`
}

type routeDecl struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

// ParseClassifier decodes allowlist YAML and builds the classifier for the
// named entrypoint, validating the declaration as it goes.
func ParseClassifier(b []byte, entrypoint string) (*Classifier, error) {
	var decl allowlistDecl
	if err := yaml.Unmarshal(b, &decl); err != nil {
		return nil, err
	}
	if decl.Version != 1 {
		return nil, errors.New("allowlist: unsupported version")
	}
	ep, ok := decl.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint " + entrypoint)
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint " + entrypoint + " has no routes")
	}

	c := &Classifier{entrypoint: entrypoint, exact: make(map[string]RouteClass, len(ep.Routes))}
	for _, r := range ep.Routes {
		if r.Path == "" || r.RouteClass == "" || len(r.Methods) == 0 {
			return nil, errors.New("allowlist: incomplete route declaration")
		}
		p, ok := ParsePathPattern(r.Path)
		if !ok {
			return nil, errors.New("allowlist: invalid route path " + r.Path)
		}
		if p.HasParams() {
			c.patterns = append(c.patterns, patternRoute{pattern: p, rc: RouteClass(r.RouteClass)})
			continue
		}
		c.exact[r.Path] = RouteClass(r.RouteClass)
	}
	return c, nil
}

// LoadClassifier reads the allowlist file at path and builds the classifier
// for the named entrypoint.
func LoadClassifier(path string, entrypoint string) (*Classifier, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClassifier(b, entrypoint)
}

func (c *Classifier) Classify(path string) RouteClass {
	if rc, ok := c.exact[path]; ok {
		return rc
	}
	for _, p := range c.patterns {
		if _, ok := p.pattern.Match(path); ok {
			return p.rc
		}
	}
	return RouteClassPublicAPI
}
