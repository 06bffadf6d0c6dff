// Package handlers exposes the broker's REST surface: token issuance, room
// password verification and room introspection.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/rooms"
	"github.com/arefkin/peercall/pkg/auth"
)

// RoomHandler serves the room token and password endpoints.
type RoomHandler struct {
	registry *rooms.Registry
	vault    *auth.PasswordVault
	tokens   *auth.TokenService
	log      logging.LeveledLogger
}

// NewRoomHandler wires the handler's collaborators.
func NewRoomHandler(registry *rooms.Registry, vault *auth.PasswordVault, tokens *auth.TokenService, log logging.LeveledLogger) *RoomHandler {
	return &RoomHandler{registry: registry, vault: vault, tokens: tokens, log: log}
}

type generateTokenRequest struct {
	RoomID   string `json:"roomID" binding:"required"`
	Password string `json:"password"`
}

type verifyPasswordRequest struct {
	RoomID   string `json:"roomID" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// GenerateRoomToken issues a room access token, optionally assigning the
// room's write-once password on the way. The broker does not gate passwordless
// token requests for protected rooms: the end-to-end encryption key includes
// the password, so a joiner without it cannot decrypt anything anyway.
func (h *RoomHandler) GenerateRoomToken(c *gin.Context) {
	var req generateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomID is required"})
		return
	}
	if err := rooms.ValidateRoomID(req.RoomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	if req.Password != "" {
		hash, err := h.vault.Hash(c.Request.Context(), req.Password)
		if errors.Is(err, auth.ErrPasswordTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": auth.ErrPasswordTooShort.Error()})
			return
		}
		if err != nil {
			h.log.Errorf("password hashing failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process password"})
			return
		}

		if err := h.registry.SetPassword(c.Request.Context(), req.RoomID, hash); err != nil {
			if errors.Is(err, rooms.ErrPasswordAlreadySet) {
				c.JSON(http.StatusConflict, gin.H{"error": rooms.ErrPasswordAlreadySet.Error()})
				return
			}
			h.log.Errorf("password store failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store password"})
			return
		}
	}

	hasPassword := req.Password != ""
	if !hasPassword {
		_, set, err := h.registry.PasswordHash(c.Request.Context(), req.RoomID)
		if err != nil {
			h.log.Errorf("room record lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not look up room"})
			return
		}
		hasPassword = set
	}

	h.issueToken(c, req.RoomID, gin.H{"hasPassword": hasPassword})
}

// VerifyRoomPassword checks a password against the room's stored hash and
// issues a token on success.
func (h *RoomHandler) VerifyRoomPassword(c *gin.Context) {
	var req verifyPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomID and password are required"})
		return
	}
	if err := rooms.ValidateRoomID(req.RoomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	hash, ok, err := h.registry.PasswordHash(c.Request.Context(), req.RoomID)
	if err != nil {
		h.log.Errorf("room record lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not look up room"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room has no password set"})
		return
	}

	match, err := h.vault.Verify(c.Request.Context(), req.Password, hash)
	if err != nil {
		h.log.Errorf("password verification failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify password"})
		return
	}
	if !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	h.issueToken(c, req.RoomID, nil)
}

// RoomInfo reports a room's password flag and occupancy.
func (h *RoomHandler) RoomInfo(c *gin.Context) {
	roomID := c.Param("roomID")
	if err := rooms.ValidateRoomID(roomID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	_, hasPassword, err := h.registry.PasswordHash(c.Request.Context(), roomID)
	if err != nil {
		h.log.Errorf("room record lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not look up room"})
		return
	}
	occupancy := h.registry.Occupancy(roomID)

	c.JSON(http.StatusOK, gin.H{
		"roomID":      roomID,
		"hasPassword": hasPassword,
		"occupancy":   occupancy,
		"isFull":      occupancy >= rooms.MaxMembers,
	})
}

func (h *RoomHandler) issueToken(c *gin.Context, roomID string, extra gin.H) {
	userID := uuid.NewString()
	token, err := h.tokens.Issue(roomID, userID)
	if err != nil {
		h.log.Errorf("token issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	body := gin.H{
		"success": true,
		"token":   token,
		"userID":  userID,
		"roomID":  roomID,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
