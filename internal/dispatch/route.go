// Package dispatch matches module-relative request paths against declared
// route tables and invokes the target handler.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sokosuite/soko/internal/tenant"
)

// Request is the payload every module handler receives: the resolved tenant
// context plus the parameters captured from the path.
type Request struct {
	Tenant *tenant.Context
	Module string
	// Params holds captures in pattern order.
	Params []string
	// Named holds the same captures keyed by placeholder name.
	Named map[string]string
}

// Handler is the single handler shape for module controllers.
type Handler interface {
	Handle(c *gin.Context, req Request)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c *gin.Context, req Request)

func (f HandlerFunc) Handle(c *gin.Context, req Request) { f(c, req) }

// RouteDecl is one declared route. Declaration order is significant: the
// first method-and-pattern match wins, so specific routes go before
// catch-alls.
type RouteDecl struct {
	Method  string
	Pattern string
	Handler Handler
}

// GET declares a GET route.
func GET(pattern string, h Handler) RouteDecl {
	return RouteDecl{Method: "GET", Pattern: pattern, Handler: h}
}

// POST declares a POST route.
func POST(pattern string, h Handler) RouteDecl {
	return RouteDecl{Method: "POST", Pattern: pattern, Handler: h}
}

// segment is one compiled path segment. Placeholders named "id" (or any
// name ending in "_id") match digits only; other placeholders match any
// non-separator run.
type segment struct {
	literal string
	param   string
	digits  bool
}

type compiledRoute struct {
	method   string
	segments []segment
	priority int
	handler  Handler
	pattern  string
}

func compileRoute(decl RouteDecl, priority int) (compiledRoute, error) {
	method := strings.ToUpper(strings.TrimSpace(decl.Method))
	if method == "" {
		return compiledRoute{}, fmt.Errorf("route %q: method is required", decl.Pattern)
	}
	if decl.Handler == nil {
		return compiledRoute{}, fmt.Errorf("route %s %q: handler is required", method, decl.Pattern)
	}

	pattern := strings.Trim(decl.Pattern, "/")
	route := compiledRoute{
		method:   method,
		priority: priority,
		handler:  decl.Handler,
		pattern:  pattern,
	}
	if pattern == "" {
		return route, nil
	}

	for _, part := range strings.Split(pattern, "/") {
		if part == "" {
			return compiledRoute{}, fmt.Errorf("route %s %q: empty path segment", method, decl.Pattern)
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.TrimSpace(part[1 : len(part)-1])
			if name == "" {
				return compiledRoute{}, fmt.Errorf("route %s %q: unnamed placeholder", method, decl.Pattern)
			}
			route.segments = append(route.segments, segment{
				param:  name,
				digits: isDigitsPlaceholder(name),
			})
			continue
		}
		route.segments = append(route.segments, segment{literal: part})
	}

	return route, nil
}

func isDigitsPlaceholder(name string) bool {
	return name == "id" || strings.HasSuffix(name, "_id")
}

func (r compiledRoute) match(method string, parts []string) ([]string, map[string]string, bool) {
	if r.method != method {
		return nil, nil, false
	}
	if len(parts) != len(r.segments) {
		return nil, nil, false
	}

	var params []string
	var named map[string]string
	for i, seg := range r.segments {
		value := parts[i]
		if seg.param == "" {
			if seg.literal != value {
				return nil, nil, false
			}
			continue
		}
		if seg.digits && !isDigits(value) {
			return nil, nil, false
		}
		params = append(params, value)
		if named == nil {
			named = make(map[string]string)
		}
		named[seg.param] = value
	}

	return params, named, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
