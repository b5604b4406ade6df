package rbac

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	PermIncidentsView   = "incidents.view"
	PermIncidentsManage = "incidents.manage"
	PermScreeningRun    = "screening.run"
	PermAdmin           = "admin"
)

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (r.obj == p.obj || p.obj == "*")
`

// defaultPolicies maps console roles to permissions. Admin gets the
// wildcard; agents and lawyers are read-only consumers of their own queues.
var defaultPolicies = [][]string{
	{"admin", "*"},
	{"operator", PermIncidentsView},
	{"operator", PermIncidentsManage},
	{"operator", PermScreeningRun},
	{"agent", PermIncidentsView},
	{"lawyer", PermIncidentsView},
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1]); err != nil {
			return nil, err
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether the role carries the permission.
func (p *Policy) Allowed(role, permission string) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(role, permission)
	return err == nil && ok
}
