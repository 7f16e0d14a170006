package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/config"
	"github.com/iliyamo/eventease/internal/logger"
	"github.com/iliyamo/eventease/internal/model"
	"github.com/iliyamo/eventease/internal/repository"
	"github.com/iliyamo/eventease/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Log    *logger.Logger
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, log *logger.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    *model.User `json:"user"`
	Access  tokenPart   `json:"access"`
	Refresh tokenPart   `json:"refresh"`
}

// Register: create user and return tokens immediately.  Emails listed in
// ADMIN_EMAILS register as ADMIN.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	role := model.RoleCustomer
	if h.Cfg.IsAdminEmail(req.Email) {
		role = model.RoleAdmin
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, req.Email, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return errorJSON(c, http.StatusConflict, "EMAIL_EXISTS", "email already exists")
		}
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return errorJSON(c, http.StatusBadRequest, "INVALID_INPUT", "password too long")
		}
		h.Log.ErrorContext(ctx, "create user failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "create user failed")
	}
	h.Log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)

	resp, err := h.issue(ctx, u)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "issue tokens failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errorJSON(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		}
		h.Log.ErrorContext(ctx, "load user failed", "error", err)
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "query failed")
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return errorJSON(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
	}
	if utils.NeedsRehash(u.PasswordHash, h.Cfg.BcryptCost) {
		// best effort; the login itself already succeeded
		if hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost); err == nil {
			if err := h.Users.SetPasswordHash(ctx, u.ID, hash); err != nil {
				h.Log.WarnContext(ctx, "rehash password failed", "user_id", u.ID, "error", err)
			}
		}
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if ok, err := bindValid(c, &req); !ok {
		return err
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh")
	}
	// the conditional revoke decides which of two concurrent refreshes wins
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return errorJSON(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh")
		}
		h.Log.ErrorContext(ctx, "revoke refresh failed", "user_id", userID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "revoke failed")
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errorJSON(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh")
		}
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "load user failed")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "issue tokens failed")
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes a single refresh token when one is posted, or every
// refresh token of the bearer when only an access token is supplied.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		if id, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer ")); err == nil {
			uid = id.UserID
		}
	}

	// an empty or malformed body is fine when a bearer token is present
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return errorJSON(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrTokenInvalid) {
				return errorJSON(c, http.StatusUnauthorized, "INVALID_REFRESH", "invalid refresh token")
			}
			return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	case uid != 0:
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "logout failed")
		}
		return c.NoContent(http.StatusNoContent)
	}
	return errorJSON(c, http.StatusBadRequest, "INVALID_INPUT", "provide Authorization header or refresh_token")
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}
	u, err := h.Users.GetByID(c.Request().Context(), uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return errorJSON(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
		}
		return errorJSON(c, http.StatusInternalServerError, "INTERNAL_ERROR", "load user failed")
	}
	return c.JSON(http.StatusOK, u)
}

func (h *AuthHandler) issue(ctx context.Context, u *model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.ErrorContext(ctx, "store refresh failed", "user_id", u.ID, "error", err)
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}
