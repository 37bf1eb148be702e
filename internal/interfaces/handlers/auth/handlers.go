package auth

import (
	"context"
	"errors"

	authsvc "wattswap-backend/internal/application/auth"
	"wattswap-backend/internal/domain"
	"wattswap-backend/internal/middleware"
	"wattswap-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder authsvc.UserFinder
	Registrar  authsvc.UserRegistrar
	Rdb        *redis.Client
	Config     middleware.SessionConfig
}

// Register POST /api/v1/auth/register: create a local account and sign it in.
func (h *Handlers) Register(c *fiber.Ctx) error {
	if h.Registrar == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}
	user, err := h.Registrar.Register(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired), errors.Is(err, authsvc.ErrInvalidEmail),
			errors.Is(err, authsvc.ErrWeakPassword), errors.Is(err, authsvc.ErrInvalidDisplayName):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrEmailTaken):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("register failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.SuccessCreated(c, "Registration successful", fiber.Map{"user": userView(user)}, nil)
}

// Login POST /api/v1/auth/login: authenticate, create session, track it under user_sessions:uid.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, authsvc.ErrEmailPasswordRequired.Error(), fiber.StatusBadRequest, nil)
	}

	user, err := h.UserFinder.FindByEmailAndPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			return response.Error(c, err.Error(), fiber.StatusUnauthorized, nil)
		default:
			log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("login failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	if err := h.startSession(c, user); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Login successful", fiber.Map{"user": userView(user)}, nil)
}

// startSession regenerates the session id, stores the user and sets the cookie.
func (h *Handlers) startSession(c *fiber.Ctx, user *domain.User) error {
	sessionID := middleware.RegenerateSessionID(c)
	uid := user.UserID.String()
	middleware.SetSessionUser(c, middleware.SessionUser{
		UID:         uid,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	})
	if err := h.Rdb.SAdd(context.Background(), userSessionsPrefix+uid, sessionID).Err(); err != nil {
		log.Error().Err(err).Str("user_id", uid).Msg("session tracking failed")
		return err
	}
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = "s:" + sessionID
	c.Cookie(&cookie)
	return nil
}

func userView(u *domain.User) fiber.Map {
	return fiber.Map{
		"uid":         u.UserID.String(),
		"email":       u.Email,
		"displayName": u.DisplayName,
	}
}

// Me GET /api/v1/auth/me: the caller as the marketplace sees them, from a bearer token or the session.
func (h *Handlers) Me(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		var err error
		id, err = authsvc.VerifyUser(middleware.GetSessionUser(c))
		if err != nil {
			log.Debug().Str("path", c.Path()).Bool("session_present", middleware.GetSessionID(c) != "").
				Msg("auth/me: not authenticated")
			return response.Error(c, authsvc.ErrNotAuthenticated.Error(), fiber.StatusUnauthorized, nil)
		}
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": id}, nil)
}

// Logout DELETE /api/v1/auth/logout: drop the session from Redis and clear the cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := context.Background()

	if sessionID != "" {
		if id, err := authsvc.VerifyUser(middleware.GetSessionUser(c)); err == nil {
			_ = h.Rdb.SRem(ctx, userSessionsPrefix+id.UID, sessionID).Err()
		}
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}
	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}
