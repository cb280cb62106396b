package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/willianribas/bots/internal/api/middleware"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler exchanges the admin credentials for a session token.
type AuthHandler struct {
	username     string
	passwordHash []byte
	auth         *middleware.Authenticator
}

// NewAuthHandler creates an auth handler.
// Parameters:
//   - username: the single admin user.
//   - passwordHash: bcrypt hash of the admin password.
//   - auth: token issuer.
// Returns:
//   - *AuthHandler: initialized handler.
func NewAuthHandler(username, passwordHash string, auth *middleware.Authenticator) *AuthHandler {
	return &AuthHandler{username: username, passwordHash: []byte(passwordHash), auth: auth}
}

// LoginRequest is the body of POST /api/v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		middleware.GetLogger(c).Warnf("failed login for %q from %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expires, err := h.auth.Issue(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	middleware.GetLogger(c).Infof("admin %q logged in", req.Username)
	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires})
}
