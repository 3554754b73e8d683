package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/blazer/internal/db"
	"github.com/energizer-project/blazer/internal/session"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Persona  string `json:"persona" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, persona and password are required"})
		return
	}

	account, err := s.accounts.CreateAccount(c.Request.Context(), req.Email, req.Persona, req.Password)
	switch {
	case errors.Is(err, db.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, db.ErrInvalidAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("account registration failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, account)
}

// handleLogin exchanges a password for a session token usable both here and
// in the game protocol's token login.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	ctx := c.Request.Context()
	id, err := s.accounts.Authenticate(ctx, session.Credential{Email: req.Email, Password: req.Password})
	if errors.Is(err, session.ErrInvalidCredentials) {
		s.metrics.AuthFailed()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := s.accounts.IssueToken(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id": id,
		"token":      token,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	id := c.MustGet(ctxAccountID).(session.AccountID)
	account, err := s.accounts.Account(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, account)
}
