// Package middleware provides authentication and authorization middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
)

// sessionUser extracts and validates the authenticated user from the session.
// Returns false if the session carries no usable identity.
func sessionUser(c *gin.Context) (userID int, username string, ok bool) {
	session := sessions.Default(c)

	rawID := session.Get(UserIDKey)
	if rawID == nil {
		return 0, "", false
	}

	userID, idOk := rawID.(int)
	if !idOk {
		// Session stores deserialized from JSON hold numbers as float64
		rawFloat, floatOk := rawID.(float64)
		if !floatOk {
			return 0, "", false
		}
		userID = int(rawFloat)
	}

	rawName := session.Get(UsernameKey)
	if rawName == nil {
		return 0, "", false
	}

	username, nameOk := rawName.(string)
	if !nameOk || username == "" {
		return 0, "", false
	}

	return userID, username, true
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": "Authentication required",
		"code":  "UNAUTHORIZED",
	})
	c.Abort()
}

// RequireAuth returns a middleware that requires authentication
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, username, ok := sessionUser(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		// Store user info in context for handlers to use
		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)

		c.Next()
	}
}

// RequireAdmin returns a middleware that requires authentication and admin role
func RequireAdmin(userService interface{}) gin.HandlerFunc {
	// Type assertion to get the user service
	us, ok := userService.(interface {
		IsAdmin(ctx context.Context, userID int) (bool, error)
	})
	if !ok {
		panic("userService must implement IsAdmin method")
	}

	return func(c *gin.Context) {
		userID, username, ok := sessionUser(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		// Check if user has admin role
		isAdmin, err := us.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to check admin status",
				"code":  "INTERNAL_ERROR",
			})
			c.Abort()
			return
		}

		if !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Admin access required",
				"code":  "FORBIDDEN",
			})
			c.Abort()
			return
		}

		// Store user info in context for handlers to use
		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)

		c.Next()
	}
}
