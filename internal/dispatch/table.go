package dispatch

import (
	"errors"
	"sort"
	"strings"
)

// ErrRouteNotFound means the module exists but declares no route for this
// method and path. Distinct from a missing module, which the caller detects
// before consulting the table.
var ErrRouteNotFound = errors.New("route not found")

// Table is a module's compiled route table. Built once at registration,
// read-only afterwards.
type Table struct {
	routes []compiledRoute
}

// CompileTable compiles the declared routes. Declaration order becomes an
// explicit priority so the first-match-wins contract survives any internal
// reordering.
func CompileTable(decls []RouteDecl) (*Table, error) {
	table := &Table{routes: make([]compiledRoute, 0, len(decls))}
	for i, decl := range decls {
		route, err := compileRoute(decl, i)
		if err != nil {
			return nil, err
		}
		table.routes = append(table.routes, route)
	}
	sort.SliceStable(table.routes, func(a, b int) bool {
		return table.routes[a].priority < table.routes[b].priority
	})
	return table, nil
}

// Match finds the first declared route matching the method and tail and
// returns the handler with its captures.
func (t *Table) Match(method, tail string) (Handler, []string, map[string]string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	parts := splitTail(tail)

	for _, route := range t.routes {
		params, named, ok := route.match(method, parts)
		if ok {
			return route.handler, params, named, nil
		}
	}
	return nil, nil, nil, ErrRouteNotFound
}

// splitTail normalizes the module-relative path. An empty tail is a valid
// match for the module's root route.
func splitTail(tail string) []string {
	tail = strings.Trim(tail, "/")
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "/")
}
