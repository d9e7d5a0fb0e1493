package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clanforge/backend/internal/apperr"
	"clanforge/backend/internal/auth"
	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/models"
)

// region --- DTOs ---

type LobbyInput struct {
	Title       string `json:"title" binding:"required" example:"Need a designer for HackMIT"`
	Description string `json:"description" example:"48h, we have two devs"`
	Category    string `json:"category" binding:"required" example:"hackathon"`
	Location    string `json:"location" example:"Library, 2nd floor"`
	Skill       string `json:"skill" binding:"required" example:"Intermediate"`
	EventDate   string `json:"eventDate" example:"2026-11-20"`
	MaxPlayers  int    `json:"maxPlayers" binding:"required" example:"4"`
}

func (in LobbyInput) details() lobby.Details {
	return lobby.Details{
		Title:       in.Title,
		Description: in.Description,
		Category:    models.Category(in.Category),
		Location:    in.Location,
		Skill:       models.SkillLevel(in.Skill),
		EventDate:   in.EventDate,
		MaxPlayers:  in.MaxPlayers,
	}
}

type JoinRequestInput struct {
	Message string `json:"message" example:"I do UI design"`
}

type RequestDecisionInput struct {
	RequestUID string `json:"requestUid" binding:"required"`
}

type KickInput struct {
	TargetUID string `json:"targetUid" binding:"required"`
}

type TransferInput struct {
	NewHostUID string `json:"newHostUid" binding:"required"`
}

type HostMetaResponse struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type PlayerResponse struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	AvatarID int    `json:"avatarId"`
}

type JoinRequestResponse struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	AvatarID int    `json:"avatarId"`
	Message  string `json:"message"`
}

type LobbyResponse struct {
	ID            uint                  `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      string                `json:"category"`
	Location      string                `json:"location"`
	Skill         string                `json:"skill"`
	EventDate     *time.Time            `json:"eventDate"`
	MaxPlayers    int                   `json:"maxPlayers"`
	HostID        string                `json:"hostId"`
	HostName      string                `json:"hostName"`
	HostMeta      HostMetaResponse      `json:"hostMeta"`
	Players       []PlayerResponse      `json:"players"`
	Requests      []JoinRequestResponse `json:"requests"`
	HasReachedMax bool                  `json:"hasReachedMax"`
	State         string                `json:"state" example:"open"`
	CreatedAt     time.Time             `json:"createdAt"`
}

type LeaveResponse struct {
	Message string `json:"message" example:"Left lobby"`
	State   string `json:"state" example:"open"`
}

type StatsResponse struct {
	SuccessfulSquads int64 `json:"successfulSquads" example:"42"`
}

func newLobbyResponse(l *models.Lobby) LobbyResponse {
	players := make([]PlayerResponse, 0, len(l.Players))
	for _, p := range l.Players {
		players = append(players, PlayerResponse{UID: p.UID, Name: p.Name, AvatarID: p.AvatarID})
	}
	requests := make([]JoinRequestResponse, 0, len(l.Requests))
	for _, r := range l.Requests {
		requests = append(requests, JoinRequestResponse{UID: r.UID, Name: r.Name, AvatarID: r.AvatarID, Message: r.Message})
	}

	return LobbyResponse{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		Category:      string(l.Category),
		Location:      l.Location,
		Skill:         string(l.Skill),
		EventDate:     l.EventDate,
		MaxPlayers:    l.MaxPlayers,
		HostID:        l.HostID,
		HostName:      l.HostName,
		HostMeta:      HostMetaResponse{Phone: l.HostMeta.Phone, Email: l.HostMeta.Email},
		Players:       players,
		Requests:      requests,
		HasReachedMax: l.HasReachedMax,
		State:         string(lobby.StateOf(l)),
		CreatedAt:     l.CreatedAt,
	}
}

// endregion

// LobbyHandler serves the lobby endpoints.
type LobbyHandler struct {
	lobbies *lobby.Service
}

func NewLobbyHandler(lobbies *lobby.Service) *LobbyHandler {
	return &LobbyHandler{lobbies: lobbies}
}

func actor(c *gin.Context) (lobby.Actor, bool) {
	a, ok := auth.Actor(c)
	if !ok {
		respondError(c, apperr.Unauthenticated("User not authenticated"))
	}
	return a, ok
}

// ListLobbies godoc
// @Summary      List lobbies
// @Description  Returns every lobby, newest first.
// @Tags         lobbies
// @Produce      json
// @Success      200  {array}   LobbyResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /lobbies [get]
func (h *LobbyHandler) ListLobbies(c *gin.Context) {
	lobbies, err := h.lobbies.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]LobbyResponse, 0, len(lobbies))
	for i := range lobbies {
		response = append(response, newLobbyResponse(&lobbies[i]))
	}
	c.JSON(http.StatusOK, response)
}

// GetGlobalStats godoc
// @Summary      Global statistics
// @Description  Number of lobbies that ever reached capacity.
// @Tags         lobbies
// @Produce      json
// @Success      200  {object}  StatsResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /lobbies/stats/global [get]
func (h *LobbyHandler) GetGlobalStats(c *gin.Context) {
	n, err := h.lobbies.SuccessfulSquads(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{SuccessfulSquads: n})
}

// GetLobbyByID godoc
// @Summary      Get a lobby by ID
// @Tags         lobbies
// @Produce      json
// @Param        id   path      int  true  "Lobby ID"
// @Success      200  {object}  LobbyResponse
// @Failure      404  {object}  ErrorResponse "Lobby not found"
// @Router       /lobbies/{id} [get]
func (h *LobbyHandler) GetLobbyByID(c *gin.Context) {
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	l, err := h.lobbies.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLobbyResponse(l))
}

// CreateLobby godoc
// @Summary      Create a new lobby
// @Description  Creates a new lobby, making the caller the host and only player.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input  body      LobbyInput  true  "Lobby Info"
// @Success      201    {object}  LobbyResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Router       /lobbies [post]
func (h *LobbyHandler) CreateLobby(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var input LobbyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l, err := h.lobbies.Create(c.Request.Context(), a, input.details())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLobbyResponse(l))
}

// UpdateLobby godoc
// @Summary      Update a lobby
// @Description  Host only. Overwrites the descriptive fields and refreshes the host contact snapshot.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int         true  "Lobby ID"
// @Param        input  body      LobbyInput  true  "Lobby Info"
// @Success      200    {object}  LobbyResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      403    {object}  ErrorResponse "Not authorized"
// @Failure      404    {object}  ErrorResponse "Lobby not found"
// @Router       /lobbies/{id} [put]
func (h *LobbyHandler) UpdateLobby(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input LobbyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l, err := h.lobbies.Update(c.Request.Context(), id, a, input.details())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLobbyResponse(l))
}

// RequestToJoin godoc
// @Summary      Request to join a lobby
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int               true   "Lobby ID"
// @Param        input  body      JoinRequestInput  false  "Message to the host"
// @Success      200    {object}  MessageResponse
// @Failure      404    {object}  ErrorResponse "Lobby not found"
// @Failure      409    {object}  ErrorResponse "Already joined or request already sent"
// @Router       /lobbies/{id}/request [post]
func (h *LobbyHandler) RequestToJoin(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input JoinRequestInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.lobbies.RequestJoin(c.Request.Context(), id, a, input.Message); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Request sent successfully"})
}

// AcceptRequest godoc
// @Summary      Accept a join request
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int                   true  "Lobby ID"
// @Param        input  body      RequestDecisionInput  true  "Request to accept"
// @Success      200    {object}  MessageResponse
// @Failure      403    {object}  ErrorResponse "Not authorized"
// @Failure      404    {object}  ErrorResponse "Lobby or request not found"
// @Router       /lobbies/{id}/accept [post]
func (h *LobbyHandler) AcceptRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input RequestDecisionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.lobbies.AcceptRequest(c.Request.Context(), id, a, input.RequestUID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "User accepted"})
}

// RejectRequest godoc
// @Summary      Reject a join request
// @Description  Removing a request that does not exist succeeds.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int                   true  "Lobby ID"
// @Param        input  body      RequestDecisionInput  true  "Request to reject"
// @Success      200    {object}  MessageResponse
// @Failure      403    {object}  ErrorResponse "Not authorized"
// @Failure      404    {object}  ErrorResponse "Lobby not found"
// @Router       /lobbies/{id}/reject [post]
func (h *LobbyHandler) RejectRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input RequestDecisionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lobbies.RejectRequest(c.Request.Context(), id, a, input.RequestUID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "User rejected"})
}

// JoinLobby godoc
// @Summary      Join a lobby directly
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Lobby ID"
// @Success      200  {object}  MessageResponse
// @Failure      404  {object}  ErrorResponse "Lobby not found"
// @Failure      409  {object}  ErrorResponse "Already joined or lobby is full"
// @Router       /lobbies/{id}/join [put]
func (h *LobbyHandler) JoinLobby(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}

	if _, err := h.lobbies.Join(c.Request.Context(), id, a); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Joined"})
}

// LeaveLobby godoc
// @Summary      Leave a lobby
// @Description  A host can only leave as the last player, which disbands the lobby.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Lobby ID"
// @Success      200  {object}  LeaveResponse
// @Failure      404  {object}  ErrorResponse "Lobby not found or not a member"
// @Failure      409  {object}  ErrorResponse "Host must transfer leadership first"
// @Router       /lobbies/{id}/leave [put]
func (h *LobbyHandler) LeaveLobby(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}

	state, err := h.lobbies.Leave(c.Request.Context(), id, a)
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Left lobby"
	if state == lobby.StateDisbanded {
		message = "Lobby disbanded"
	}
	c.JSON(http.StatusOK, LeaveResponse{Message: message, State: string(state)})
}

// KickMember godoc
// @Summary      Kick a member
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int        true  "Lobby ID"
// @Param        input  body      KickInput  true  "Member to kick"
// @Success      200    {object}  LobbyResponse
// @Failure      400    {object}  ErrorResponse "Host cannot kick themselves"
// @Failure      403    {object}  ErrorResponse "Not authorized"
// @Failure      404    {object}  ErrorResponse "Lobby or member not found"
// @Router       /lobbies/{id}/kick [put]
func (h *LobbyHandler) KickMember(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input KickInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l, err := h.lobbies.Kick(c.Request.Context(), id, a, input.TargetUID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLobbyResponse(l))
}

// TransferHost godoc
// @Summary      Make another member the host
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int            true  "Lobby ID"
// @Param        input  body      TransferInput  true  "New host"
// @Success      200    {object}  LobbyResponse
// @Failure      403    {object}  ErrorResponse "Not authorized"
// @Failure      404    {object}  ErrorResponse "New host not found in lobby"
// @Router       /lobbies/{id}/transfer [put]
func (h *LobbyHandler) TransferHost(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}
	var input TransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	l, err := h.lobbies.TransferHost(c.Request.Context(), id, a, input.NewHostUID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLobbyResponse(l))
}

// DisbandLobby godoc
// @Summary      Disband a lobby
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Lobby ID"
// @Success      200  {object}  MessageResponse
// @Failure      403  {object}  ErrorResponse "Not authorized"
// @Failure      404  {object}  ErrorResponse "Lobby not found"
// @Router       /lobbies/{id} [delete]
func (h *LobbyHandler) DisbandLobby(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := lobbyID(c)
	if !ok {
		return
	}

	if err := h.lobbies.Disband(c.Request.Context(), id, a); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Lobby disbanded"})
}
