// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles that carry the moderator capability over activity rosters.
var moderatorRoles = map[string]struct{}{
	"moderator":  {},
	"officer":    {},
	"admin":      {},
	"superadmin": {},
}

// UserCtx returns the user's role (lowercased), name, Mongo ObjectID, and a found flag.
// If no user is present in context or the user ID is malformed, it returns
// "visitor", "", NilObjectID, false, so ok=true always means a valid ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Malformed user ID in session; fail closed.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// IsModeratorRole reports whether role carries the moderator capability.
func IsModeratorRole(role string) bool {
	_, ok := moderatorRoles[strings.ToLower(strings.TrimSpace(role))]
	return ok
}

// CanModerate reports whether the current request's user may reorganize rosters.
func CanModerate(r *http.Request) bool {
	role, _, _, ok := UserCtx(r)
	return ok && IsModeratorRole(role)
}
