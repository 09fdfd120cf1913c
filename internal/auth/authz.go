package auth

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"

	"github.com/canalenergetico/canal-web/internal/store"
)

// Objects guarded by the policy.
const (
	ObjArticles    = "articles"
	ObjRegulations = "regulations"
	ObjMarketsNote = "markets_note"
	ObjComments    = "comments"
	ObjMail        = "mail"
)

// Actions guarded by the policy.
const (
	ActWrite    = "write"
	ActModerate = "moderate"
	ActTest     = "test"
)

var (
	//go:embed policy/model.conf
	modelText string
	//go:embed policy/policy.csv
	policyText string
)

// Authorizer answers role/object/action questions with casbin.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAuthorizer loads the embedded model and policy.
func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, stringadapter.NewAdapter(policyText))
	if err != nil {
		return nil, fmt.Errorf("authz: build enforcer: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// SubjectFromRole maps a role name to its policy subject.
func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = "anonymous"
	}
	return "role:" + role
}

// Allowed reports whether user (nil for anonymous) may perform action on object.
// Enforcement errors deny.
func (a *Authorizer) Allowed(user *store.User, object, action string) bool {
	if user != nil && !user.IsActive {
		return false
	}
	ok, err := a.enforcer.Enforce(SubjectFromRole(user.RoleName()), object, action)
	return err == nil && ok
}
