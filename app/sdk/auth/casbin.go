package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Set of objects and actions the admin API authorizes against.
const (
	ObjectTenants = "tenants"
	ObjectUsers   = "users"

	ActionRead      = "read"
	ActionCreate    = "create"
	ActionUpdate    = "update"
	ActionDelete    = "delete"
	ActionLifecycle = "lifecycle"
	ActionRotate    = "rotate"
)

const casbinModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, "ROLE:ADMIN") || (g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act)
`

// Policies are fixed: ADMIN passes the matcher unconditionally, OPERATOR is
// limited to reading tenants and driving routine lifecycle transitions.
var operatorPolicies = [][]string{
	{"ROLE:OPERATOR", ObjectTenants, ActionRead},
	{"ROLE:OPERATOR", ObjectTenants, ActionLifecycle},
}

type enforcer struct {
	enf *casbin.Enforcer
}

func newEnforcer() (*enforcer, error) {
	m, err := model.NewModelFromString(casbinModel)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for _, p := range operatorPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy %v: %w", p, err)
		}
	}

	return &enforcer{enf: e}, nil
}

func (e *enforcer) enforce(roleName string, obj string, act string) (bool, error) {
	// Subjects are role tags; the role manager links identical names, so
	// no grouping rules are needed.
	return e.enf.Enforce("ROLE:"+roleName, obj, act)
}
