// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated user's identity.
// Handlers read the caller and its tenant from here instead of from gin keys.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// TenantID returns the tenant every pipeline read and write is scoped to.
	TenantID() uuid.UUID
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	tenantID      uuid.UUID
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) TenantID() uuid.UUID {
	return i.tenantID
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var tid uuid.UUID
	if tenant, ok := c.Get(ContextTenantIDKey); ok {
		tid, _ = tenant.(uuid.UUID)
	}

	return &identity{
		userID:        uid,
		tenantID:      tid,
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// It aborts with 401 when the caller is anonymous and with 403 when the
// token carries no tenant, returning nil in both cases.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		abortWithError(c, apperr.Unauthorized("unauthorized"))
		return nil
	}
	if id.TenantID() == uuid.Nil {
		abortWithError(c, apperr.Forbidden("tenant required"))
		return nil
	}
	return id
}
