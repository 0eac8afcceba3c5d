package admin

import (
	"context"
	"sort"
	"strings"

	"github.com/kbukum/gokit-discovery/component"
)

const componentName = "admin"

var (
	_ component.Component     = (*Server)(nil)
	_ component.Describable   = (*Server)(nil)
	_ component.RouteProvider = (*Server)(nil)
)

// Name implements component.Component.
func (s *Server) Name() string { return componentName }

// Health implements component.Component.
func (s *Server) Health(context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return component.Health{Name: componentName, Status: component.StatusUnhealthy, Message: "not listening"}
	}
	return component.Health{Name: componentName, Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (s *Server) Describe() component.Description {
	return component.Description{Name: "Admin API", Type: "admin", Details: s.Addr()}
}

// Routes lists the registered routes, API routes first.
func (s *Server) Routes() []component.Route {
	ginRoutes := s.engine.Routes()
	sort.Slice(ginRoutes, func(i, j int) bool {
		iProbe, jProbe := probePaths[ginRoutes[i].Path], probePaths[ginRoutes[j].Path]
		if iProbe != jProbe {
			return !iProbe
		}
		return ginRoutes[i].Path < ginRoutes[j].Path
	})

	routes := make([]component.Route, 0, len(ginRoutes))
	for _, r := range ginRoutes {
		routes = append(routes, component.Route{Method: r.Method, Path: r.Path, Handler: handlerName(r.Handler)})
	}
	return routes
}

// handlerName turns "github.com/x/admin.(*Handlers).Discovery-fm" into
// "Handlers.Discovery".
func handlerName(full string) string {
	name := strings.TrimSuffix(full, "-fm")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ReplaceAll(name, "(*", "")
	return strings.ReplaceAll(name, ")", "")
}
