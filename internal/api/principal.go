package api

import (
	"net/http"
	"strings"

	"github.com/slok/taskbroker/internal/model"
)

// The authentication layer in front of the API resolves the user and sets these headers.
const (
	headerPrincipalID     = "X-Principal-ID"
	headerPrincipalRoles  = "X-Principal-Roles"
	headerPrincipalStatus = "X-Principal-Status"
)

type principalHandlerFunc func(w http.ResponseWriter, r *http.Request, p model.Principal)

// authenticated resolves the request principal, requests without one are rejected.
func (h handler) authenticated(next principalHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromRequest(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing principal"})
			return
		}
		next(w, r, p)
	}
}

func principalFromRequest(r *http.Request) (model.Principal, bool) {
	id := strings.TrimSpace(r.Header.Get(headerPrincipalID))
	if id == "" {
		return model.Principal{}, false
	}

	var roles []model.Role
	for _, role := range strings.Split(r.Header.Get(headerPrincipalRoles), ",") {
		role = strings.TrimSpace(role)
		// The system role is reserved to internal actors.
		if role == "" || model.Role(role) == model.RoleSystem {
			continue
		}
		roles = append(roles, model.Role(role))
	}

	status := model.PrincipalStatusActive
	if s := strings.TrimSpace(r.Header.Get(headerPrincipalStatus)); s != "" {
		status = model.PrincipalStatus(s)
	}

	return model.Principal{ID: id, Roles: roles, Status: status}, true
}
