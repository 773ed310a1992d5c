package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/http/middleware"
)

var ErrNoOperatorSecret = errors.New("api: operator group without a signing secret")

// Module attaches a feature's endpoints to a Controller.
type Module interface {
	Mount(c *Controller)
}

type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// Group is one route prefix and the modules served under it. Groups are
// operator-only unless Public is set.
type Group struct {
	Prefix string
	Public bool
	// OperatorSecret verifies operator bearer tokens.
	OperatorSecret string
	Middleware     []gin.HandlerFunc
	Modules        []Module
}

// OperatorGroup is a group guarded by operator tokens signed with secret.
func OperatorGroup(prefix, secret string, modules ...Module) Group {
	return Group{Prefix: prefix, OperatorSecret: secret, Modules: modules}
}

// Mount registers the group on parent. It refuses to expose an operator
// group that has no secret to check tokens against.
func (g Group) Mount(parent gin.IRouter) (*gin.RouterGroup, error) {
	if !g.Public && g.OperatorSecret == "" {
		return nil, ErrNoOperatorSecret
	}

	grp := parent.Group(g.Prefix, g.Middleware...)
	if !g.Public {
		grp.Use(middleware.JWTMiddleware(g.OperatorSecret))
	}

	controller := &Controller{Group: grp}
	for _, m := range g.Modules {
		m.Mount(controller)
	}
	log.Debug().
		Str("prefix", grp.BasePath()).
		Bool("public", g.Public).
		Int("modules", len(g.Modules)).
		Msg("route group mounted")
	return grp, nil
}
