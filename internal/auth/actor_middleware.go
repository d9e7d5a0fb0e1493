package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/models"
)

const actorKey = "actor"

// ProfileLoader loads the account behind a uid.
type ProfileLoader interface {
	Get(ctx context.Context, uid string) (*models.User, error)
}

// ActorMiddleware loads the caller's profile and stores it as the acting
// principal for lobby operations.
// It must be used AFTER AuthMiddleware.
func ActorMiddleware(users ProfileLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := UID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		u, err := users.Get(c.Request.Context(), uid)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) && appErr.Kind == apperr.KindNotFound {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authenticated user not found"})
				return
			}
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err)})
			return
		}

		c.Set(actorKey, ActorOf(u))
		c.Next()
	}
}

// ActorOf builds the lobby principal from a profile. Contact details are only
// included when the user made them public.
func ActorOf(u *models.User) lobby.Actor {
	a := lobby.Actor{UID: u.UID, Name: u.Name, AvatarID: u.AvatarID}
	if u.ShowContact {
		a.Contact = models.HostMeta{Phone: u.Phone, Email: u.Email}
	}
	return a
}

// Actor returns the principal stored by ActorMiddleware.
func Actor(c *gin.Context) (lobby.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return lobby.Actor{}, false
	}
	a, ok := v.(lobby.Actor)
	return a, ok
}
