package middleware

import (
	"net/http"
	"path"
	"slices"
	"strings"

	"mediastore/pkg/logger"
)

const (
	RoleReader = "reader" // may read private documents and subscribe to events
	RoleEditor = "editor" // may create documents and delete owners
)

// Rule guards every path under Prefix. An empty Methods list covers all
// methods.
type Rule struct {
	Prefix  string
	Methods []string
	Role    string
}

func (r Rule) matches(req *http.Request, p string) bool {
	if len(r.Methods) > 0 && !slices.Contains(r.Methods, req.Method) {
		return false
	}
	if strings.HasSuffix(r.Prefix, "/") {
		return strings.HasPrefix(p, r.Prefix) || p == strings.TrimSuffix(r.Prefix, "/")
	}
	return p == r.Prefix || strings.HasPrefix(p, r.Prefix+"/")
}

// Policy is evaluated top to bottom and the first matching rule wins. A
// request no rule matches is public.
type Policy []Rule

func DefaultPolicy(privateDir, mediaPath string) Policy {
	return Policy{
		{Prefix: "/" + strings.Trim(privateDir, "/") + "/", Role: RoleReader},
		{Prefix: mediaPath, Methods: []string{http.MethodPost, http.MethodDelete}, Role: RoleEditor},
		{Prefix: "/events", Role: RoleReader},
	}
}

// Match returns the rule guarding req, if any.
func (p Policy) Match(req *http.Request) (Rule, bool) {
	cleaned := path.Clean("/" + req.URL.Path)
	for _, rule := range p {
		if rule.matches(req, cleaned) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Enforce applies the policy in front of next: a guarded request needs a
// valid token (401 otherwise) carrying the rule's role (403 otherwise).
// Public requests pass through untouched.
func Enforce(p Policy, v *Verifier) func(http.Handler) http.Handler {
	authenticate := AuthMiddleware(v)
	return func(next http.Handler) http.Handler {
		authorized := authenticate(requireRole(p, next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, guarded := p.Match(r); !guarded {
				next.ServeHTTP(w, r)
				return
			}
			authorized.ServeHTTP(w, r)
		})
	}
}

// requireRole runs after AuthMiddleware, so the identity is always present.
func requireRole(p Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule, _ := p.Match(r)
		id, _ := IdentityFromContext(r.Context())
		if !id.HasRole(rule.Role) {
			userID := ""
			if id != nil {
				userID = id.UserID
			}
			logger.Sugar.Infof("User %s lacks role %s for %s %s", userID, rule.Role, r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, "forbidden: requires role "+rule.Role)
			return
		}
		next.ServeHTTP(w, r)
	})
}
