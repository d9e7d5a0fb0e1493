package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/auth"
	"clanforge/backend/internal/models"
	"clanforge/backend/internal/user"
)

// region --- DTOs ---

// SendOTPInput starts an email registration.
type SendOTPInput struct {
	Email string `json:"email" binding:"required" example:"ada@uni.edu"`
}

// RegisterInput completes an email registration.
type RegisterInput struct {
	Name     string `json:"name" binding:"required" example:"Ada"`
	Email    string `json:"email" binding:"required" example:"ada@uni.edu"`
	Password string `json:"password" binding:"required" example:"password123"`
	OTP      string `json:"otp" binding:"required" example:"482913"`
}

// LoginInput defines the structure for user login.
type LoginInput struct {
	Email    string `json:"email" binding:"required" example:"ada@uni.edu"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// GoogleLoginInput carries a Google ID token.
type GoogleLoginInput struct {
	Token string `json:"token" binding:"required"`
}

type CustomLinkDTO struct {
	Label string `json:"label" example:"Blog"`
	URL   string `json:"url" example:"https://ada.dev"`
}

// ProfileInput replaces the editable parts of the caller's profile.
type ProfileInput struct {
	Name        string          `json:"name" binding:"required" example:"Ada"`
	Bio         string          `json:"bio"`
	Phone       string          `json:"phone"`
	AvatarID    int             `json:"avatarId" example:"3"`
	ShowContact bool            `json:"showContact"`
	Portfolio   string          `json:"portfolio"`
	LinkedIn    string          `json:"linkedin"`
	GitHub      string          `json:"github"`
	CustomLinks []CustomLinkDTO `json:"customLinks"`
}

// PublicUserResponse defines the structure for a user's public profile.
// Phone and email are only present when the user made them visible.
type PublicUserResponse struct {
	UID         string          `json:"uid"`
	Name        string          `json:"name" example:"Ada"`
	AvatarID    int             `json:"avatarId"`
	Bio         string          `json:"bio"`
	Portfolio   string          `json:"portfolio"`
	LinkedIn    string          `json:"linkedin"`
	GitHub      string          `json:"github"`
	CustomLinks []CustomLinkDTO `json:"customLinks"`
	Phone       string          `json:"phone,omitempty"`
	Email       string          `json:"email,omitempty"`
}

// PrivateUserResponse defines the structure for the authenticated user's own profile.
type PrivateUserResponse struct {
	UID         string          `json:"uid"`
	Name        string          `json:"name" example:"Ada"`
	Email       string          `json:"email" example:"ada@uni.edu"`
	AvatarID    int             `json:"avatarId"`
	Bio         string          `json:"bio"`
	Phone       string          `json:"phone"`
	ShowContact bool            `json:"showContact"`
	Portfolio   string          `json:"portfolio"`
	LinkedIn    string          `json:"linkedin"`
	GitHub      string          `json:"github"`
	CustomLinks []CustomLinkDTO `json:"customLinks"`
	HasPassword bool            `json:"hasPassword"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SessionResponse is returned by every sign-in flow.
type SessionResponse struct {
	Token string              `json:"token"`
	User  PrivateUserResponse `json:"user"`
}

func linkDTOs(links []models.CustomLink) []CustomLinkDTO {
	out := make([]CustomLinkDTO, 0, len(links))
	for _, l := range links {
		out = append(out, CustomLinkDTO{Label: l.Label, URL: l.URL})
	}
	return out
}

func buildPublicUserResponse(u *models.User) PublicUserResponse {
	resp := PublicUserResponse{
		UID:         u.UID,
		Name:        u.Name,
		AvatarID:    u.AvatarID,
		Bio:         u.Bio,
		Portfolio:   u.Portfolio,
		LinkedIn:    u.LinkedIn,
		GitHub:      u.GitHub,
		CustomLinks: linkDTOs(u.CustomLinks),
	}
	if u.ShowContact {
		resp.Phone = u.Phone
		resp.Email = u.Email
	}
	return resp
}

func buildPrivateUserResponse(u *models.User) PrivateUserResponse {
	return PrivateUserResponse{
		UID:         u.UID,
		Name:        u.Name,
		Email:       u.Email,
		AvatarID:    u.AvatarID,
		Bio:         u.Bio,
		Phone:       u.Phone,
		ShowContact: u.ShowContact,
		Portfolio:   u.Portfolio,
		LinkedIn:    u.LinkedIn,
		GitHub:      u.GitHub,
		CustomLinks: linkDTOs(u.CustomLinks),
		HasPassword: u.PasswordHash != "",
		CreatedAt:   u.CreatedAt,
	}
}

func newSessionResponse(s *user.Session) SessionResponse {
	return SessionResponse{Token: s.Token, User: buildPrivateUserResponse(s.User)}
}

// endregion

// UserHandler serves account and profile endpoints.
type UserHandler struct {
	users *user.Service
}

func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

// region --- Auth Handlers ---

// SendOTP godoc
// @Summary      Send a verification code
// @Description  Mails a six digit code to an unregistered email. A previous code is replaced.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input  body      SendOTPInput  true  "Email"
// @Success      200    {object}  MessageResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      409    {object}  ErrorResponse "Email already registered"
// @Failure      429    {object}  ErrorResponse
// @Router       /users/send-otp [post]
func (h *UserHandler) SendOTP(c *gin.Context) {
	var input SendOTPInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.SendOTP(c.Request.Context(), input.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "OTP sent to email"})
}

// RegisterVerify godoc
// @Summary      Register a new user
// @Description  Verifies the emailed code, creates the account and returns an authentication token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input  body      RegisterInput  true  "Registration Info"
// @Success      201    {object}  SessionResponse
// @Failure      400    {object}  ErrorResponse "Invalid or expired OTP"
// @Failure      409    {object}  ErrorResponse
// @Router       /users/register-verify [post]
func (h *UserHandler) RegisterVerify(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.users.Register(c.Request.Context(), user.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		OTP:      input.OTP,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(s))
}

// Login godoc
// @Summary      Log in a user
// @Description  Authenticates with email and password and returns a new token.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input  body      LoginInput  true  "Login Info"
// @Success      200    {object}  SessionResponse
// @Failure      400    {object}  ErrorResponse "Please sign in with Google"
// @Failure      401    {object}  ErrorResponse "Invalid credentials"
// @Router       /users/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.users.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s))
}

// GoogleLogin godoc
// @Summary      Sign in with Google
// @Description  Verifies a Google ID token and signs in, creating the account on first use.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input  body      GoogleLoginInput  true  "Google ID token"
// @Success      200    {object}  SessionResponse
// @Failure      401    {object}  ErrorResponse "Invalid Google token"
// @Router       /users/google [post]
func (h *UserHandler) GoogleLogin(c *gin.Context) {
	var input GoogleLoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.users.GoogleLogin(c.Request.Context(), input.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s))
}

// endregion

// region --- Profile Handlers ---

func currentUID(c *gin.Context) (string, bool) {
	uid, ok := auth.UID(c)
	if !ok {
		respondError(c, apperr.Unauthenticated("User not authenticated"))
	}
	return uid, ok
}

// GetMe godoc
// @Summary      Get current user's profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  PrivateUserResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "User not found"
// @Router       /users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), uid)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildPrivateUserResponse(u))
}

// GetUserByUID godoc
// @Summary      Get a user's public profile
// @Description  Owners requesting their own uid with a valid token get the private profile.
// @Tags         users
// @Produce      json
// @Param        uid  path      string  true  "User UID"
// @Success      200  {object}  PublicUserResponse
// @Failure      404  {object}  ErrorResponse "User not found"
// @Router       /users/{uid} [get]
func (h *UserHandler) GetUserByUID(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if uid, ok := auth.UID(c); ok && uid == u.UID {
		c.JSON(http.StatusOK, buildPrivateUserResponse(u))
		return
	}
	c.JSON(http.StatusOK, buildPublicUserResponse(u))
}

// UpdateMe godoc
// @Summary      Update current user's profile
// @Description  The email cannot be changed here.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input  body      ProfileInput  true  "Profile"
// @Success      200    {object}  PrivateUserResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /users/me [put]
func (h *UserHandler) UpdateMe(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}
	var input ProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links := make([]models.CustomLink, 0, len(input.CustomLinks))
	for _, l := range input.CustomLinks {
		links = append(links, models.CustomLink{Label: l.Label, URL: l.URL})
	}
	u, err := h.users.Update(c.Request.Context(), uid, user.ProfileInput{
		Name:        input.Name,
		Bio:         input.Bio,
		Phone:       input.Phone,
		AvatarID:    input.AvatarID,
		ShowContact: input.ShowContact,
		Portfolio:   input.Portfolio,
		LinkedIn:    input.LinkedIn,
		GitHub:      input.GitHub,
		CustomLinks: links,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildPrivateUserResponse(u))
}

// DeleteMe godoc
// @Summary      Delete current user's account
// @Description  Deletes the account, the lobbies it hosts, and its memberships and requests elsewhere.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  MessageResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "User not found"
// @Router       /users/me [delete]
func (h *UserHandler) DeleteMe(c *gin.Context) {
	uid, ok := currentUID(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), uid); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Account and associated data deleted successfully"})
}

// endregion
