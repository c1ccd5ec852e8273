package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"holdem-service/internal/middleware"
	"holdem-service/internal/service"
	rakeSvc "holdem-service/internal/service/rake"
	tableSvc "holdem-service/internal/service/table"
	usersvc "holdem-service/internal/service/user"
	walletsvc "holdem-service/internal/service/wallet"
	"holdem-service/internal/ws"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(services.Table)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	v1 := r.Group("/holdemService/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/sms/send", handler.SendSMSCode)
			authGroup.POST("/sms/login", handler.SMSLogin)
		}

		userGroup := v1.Group("/user")
		userGroup.Use(middleware.AuthRequired())
		{
			userGroup.GET("/profile", handler.GetProfile)
			userGroup.PUT("/profile", handler.UpdateProfile)
			userGroup.GET("/wallet", handler.GetWallet)
		}

		tableGroup := v1.Group("/tables")
		tableGroup.Use(middleware.AuthRequired())
		{
			tableGroup.POST("/:id/join", handler.JoinTable)
			tableGroup.POST("/:id/leave", handler.LeaveTable)
			tableGroup.POST("/:id/start", handler.StartGame)
			tableGroup.POST("/:id/action", handler.HandleAction)
			tableGroup.POST("/:id/ready", handler.MarkReady)
			tableGroup.GET("/:id/state", handler.GetTableState)
		}
	}

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/auth/login", handler.AdminLogin)

		protected := adminGroup.Group("/")
		protected.Use(middleware.AdminAuthRequired())
		{
			protected.GET("/tables", handler.AdminListTables)
			protected.POST("/tables", handler.AdminCreateTable)

			protected.GET("/rake_rules", handler.AdminListRakeRules)
			protected.POST("/rake_rules", handler.AdminCreateRakeRule)
			protected.PUT("/rake_rules/:id", handler.AdminUpdateRakeRule)

			protected.GET("/users", handler.AdminListUsers)
			protected.PUT("/users/:id/ban", handler.AdminBanUser)
			protected.PUT("/users/:id/wallet", handler.AdminSetUserWallet)
		}
	}

	r.GET("/ws/table/:tableId", wsHandler.HandleTableWS)
}

type smsSendBody struct {
	Phone string `json:"phone" binding:"required"`
}

type smsLoginBody struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type updateProfileBody struct {
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
}

type joinTableBody struct {
	BuyIn int64 `json:"buyIn" binding:"required,min=1"`
}

type actionBody struct {
	Action string `json:"action" binding:"required"`
	Amount int64  `json:"amount"`
}

type adminLoginBody struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminUserBanBody struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

type adminSetWalletBody struct {
	BalanceAvailable *int64 `json:"balanceAvailable"`
	BalanceFrozen    *int64 `json:"balanceFrozen"`
}

type tableMutationBody struct {
	SmallBlind int64   `json:"smallBlind" binding:"required,min=1"`
	BigBlind   int64   `json:"bigBlind" binding:"required,min=1"`
	Ante       int64   `json:"ante" binding:"min=0"`
	StackSize  int64   `json:"stackSize" binding:"min=0"`
	MaxPlayers int     `json:"maxPlayers" binding:"required,min=2,max=9"`
	RakeRuleID int64   `json:"rakeRuleId" binding:"min=0"`
	ExpiresAt  *string `json:"expiresAt"`
}

func (b tableMutationBody) toParams() (tableSvc.AdminCreateParams, error) {
	var expiresAt *time.Time
	if b.ExpiresAt != nil && strings.TrimSpace(*b.ExpiresAt) != "" {
		ts, err := parseTimeWithLayouts(strings.TrimSpace(*b.ExpiresAt))
		if err != nil {
			return tableSvc.AdminCreateParams{}, err
		}
		expiresAt = ts
	}
	return tableSvc.AdminCreateParams{
		SmallBlind: b.SmallBlind,
		BigBlind:   b.BigBlind,
		Ante:       b.Ante,
		StackSize:  b.StackSize,
		MaxPlayers: b.MaxPlayers,
		RakeRuleID: b.RakeRuleID,
		ExpiresAt:  expiresAt,
	}, nil
}

type rakeRuleBody struct {
	Name        string          `json:"name" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Remark      string          `json:"remark"`
	ConfigJSON  json.RawMessage `json:"configJson" binding:"required"`
	Status      string          `json:"status" binding:"required"`
	EffectiveAt *string         `json:"effectiveAt"`
}

func (b rakeRuleBody) toParams() (rakeSvc.MutationParams, error) {
	status := strings.ToLower(strings.TrimSpace(b.Status))
	if status == "" {
		status = "enabled"
	}
	if status != "enabled" && status != "disabled" {
		return rakeSvc.MutationParams{}, fmt.Errorf("invalid status, must be enabled or disabled")
	}

	var effectiveAt *time.Time
	if b.EffectiveAt != nil && strings.TrimSpace(*b.EffectiveAt) != "" {
		ts, err := parseTimeWithLayouts(strings.TrimSpace(*b.EffectiveAt))
		if err != nil {
			return rakeSvc.MutationParams{}, err
		}
		effectiveAt = ts
	}

	return rakeSvc.MutationParams{
		Name:        strings.TrimSpace(b.Name),
		Type:        b.Type,
		Remark:      strings.TrimSpace(b.Remark),
		Status:      status,
		ConfigJSON:  b.ConfigJSON,
		EffectiveAt: effectiveAt,
	}, nil
}

func (h *Handler) SendSMSCode(c *gin.Context) {
	var body smsSendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.services.Auth.SendSMS(c.Request.Context(), body.Phone); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	response.SuccessWithMsg(c, gin.H{}, "code sent")
}

func (h *Handler) SMSLogin(c *gin.Context) {
	var body smsLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.services.Auth.Login(c.Request.Context(), body.Phone, body.Code)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, appErr.ErrInvalidPhone), errors.Is(err, appErr.ErrInvalidSMSCode):
			status = http.StatusBadRequest
		case errors.Is(err, appErr.ErrSMSCodeExpired):
			status = http.StatusGone
		case errors.Is(err, appErr.ErrUserBanned):
			status = http.StatusForbidden
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, resp)
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	profile, err := h.services.User.GetProfile(c.Request.Context(), userID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, appErr.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		response.Error(c, status, err.Error())
		return
	}
	response.Success(c, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body updateProfileBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.services.User.UpdateProfile(c.Request.Context(), userID, usersvc.UpdateProfileRequest{
		Nickname: body.Nickname,
		Avatar:   body.Avatar,
	})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, updated)
}

func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.services.Wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}
	response.Success(c, gin.H{"wallet": wallet})
}

func (h *Handler) JoinTable(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	var body joinTableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	seat, err := h.services.Table.JoinTable(c.Request.Context(), tableID, userID, body.BuyIn)
	if err != nil {
		h.handleTableError(c, err)
		return
	}

	response.Success(c, gin.H{"seat": seat})
}

func (h *Handler) LeaveTable(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	if err := h.services.Table.LeaveTable(c.Request.Context(), tableID, userID); err != nil {
		h.handleTableError(c, err)
		return
	}

	response.SuccessWithMsg(c, gin.H{}, "left table")
}

func (h *Handler) StartGame(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	state, err := h.services.Table.StartGame(c.Request.Context(), tableID, userID)
	if err != nil {
		h.handleTableError(c, err)
		return
	}

	response.Success(c, state)
}

func (h *Handler) HandleAction(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	var body actionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.services.Table.HandleAction(c.Request.Context(), tableID, userID, strings.ToLower(strings.TrimSpace(body.Action)), body.Amount)
	if err != nil {
		h.handleTableError(c, err)
		return
	}

	response.Success(c, state)
}

func (h *Handler) MarkReady(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	allReady, err := h.services.Table.MarkPlayerReady(c.Request.Context(), tableID, userID)
	if err != nil {
		h.handleTableError(c, err)
		return
	}
	if allReady {
		if err := h.services.Table.CompleteInterHandPhase(c.Request.Context(), tableID); err != nil {
			h.handleTableError(c, err)
			return
		}
	}

	response.Success(c, gin.H{"allReady": allReady})
}

func (h *Handler) GetTableState(c *gin.Context) {
	tableID, userID, ok := tableAndUser(c)
	if !ok {
		return
	}

	state, err := h.services.Table.GetState(c.Request.Context(), tableID, userID)
	if err != nil {
		h.handleTableError(c, err)
		return
	}

	response.Success(c, state)
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var body adminLoginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.services.Admin.Login(c.Request.Context(), body.Username, body.Password)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, appErr.ErrAdminNotFound), errors.Is(err, appErr.ErrInvalidAdminPassword):
			status = http.StatusUnauthorized
		case errors.Is(err, appErr.ErrAdminDisabled):
			status = http.StatusForbidden
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, resp)
}

func (h *Handler) AdminListTables(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Table.AdminListTables(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) AdminCreateTable(c *gin.Context) {
	var body tableMutationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	params, err := body.toParams()
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	table, err := h.services.Table.AdminCreateTable(c.Request.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, appErr.ErrIllegalAction):
			status = http.StatusBadRequest
		case errors.Is(err, gorm.ErrDuplicatedKey):
			status = http.StatusConflict
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, gin.H{"id": table.ID})
}

func (h *Handler) AdminListRakeRules(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.services.Rake.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) AdminCreateRakeRule(c *gin.Context) {
	var body rakeRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if !json.Valid(body.ConfigJSON) {
		response.Error(c, http.StatusBadRequest, "configJson must be valid JSON")
		return
	}

	params, err := body.toParams()
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.services.Rake.Create(c.Request.Context(), params)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{"id": rule.ID})
}

func (h *Handler) AdminUpdateRakeRule(c *gin.Context) {
	ruleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || ruleID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid rake rule id")
		return
	}

	var body rakeRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if !json.Valid(body.ConfigJSON) {
		response.Error(c, http.StatusBadRequest, "configJson must be valid JSON")
		return
	}

	params, err := body.toParams()
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	rule, err := h.services.Rake.Update(c.Request.Context(), ruleID, params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, appErr.ErrRakeRuleNotFound) {
			status = http.StatusNotFound
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, rule)
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	page, err := parsePositiveIntQuery(c, "page", 1)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	size, err := parsePositiveIntQuery(c, "size", 20)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	keyword := strings.TrimSpace(c.Query("keyword"))

	result, err := h.services.User.AdminListUsers(c.Request.Context(), page, size, keyword)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, err.Error())
		return
	}

	response.Success(c, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  page,
		"size":  size,
	})
}

func (h *Handler) AdminBanUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var body adminUserBanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	status := strings.ToLower(strings.TrimSpace(body.Status))
	if status != "normal" && status != "banned" {
		response.Error(c, http.StatusBadRequest, "status must be 'normal' or 'banned'")
		return
	}

	updated, err := h.services.User.AdminSetUserStatus(c.Request.Context(), userID, status, body.Reason)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, appErr.ErrUserNotFound) {
			statusCode = http.StatusNotFound
		}
		response.Error(c, statusCode, err.Error())
		return
	}

	response.Success(c, gin.H{"user": updated})
}

func (h *Handler) AdminSetUserWallet(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var body adminSetWalletBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	wallet, err := h.services.Wallet.AdminSetWallet(c.Request.Context(), userID, walletsvc.AdminSetWalletRequest{
		BalanceAvailable: body.BalanceAvailable,
		BalanceFrozen:    body.BalanceFrozen,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, appErr.ErrInvalidWalletPayload) {
			status = http.StatusBadRequest
		}
		response.Error(c, status, err.Error())
		return
	}

	response.Success(c, gin.H{"wallet": wallet})
}

func (h *Handler) handleTableError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appErr.ErrTableNotFound), errors.Is(err, appErr.ErrHandNotFound):
		response.Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, appErr.ErrTableEnded):
		response.Error(c, http.StatusGone, err.Error())
	case errors.Is(err, appErr.ErrNotSeated), errors.Is(err, appErr.ErrTableAccessDenied):
		response.Error(c, http.StatusForbidden, err.Error())
	case errors.Is(err, appErr.ErrHandInProgress), errors.Is(err, appErr.ErrAlreadySeated):
		response.Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, appErr.ErrNoActiveHand),
		errors.Is(err, appErr.ErrNotInterHandWait),
		errors.Is(err, appErr.ErrNotEnoughPlayers),
		errors.Is(err, appErr.ErrInsufficientBalance),
		errors.Is(err, appErr.ErrIllegalAction),
		errors.Is(err, appErr.ErrInvalidBuyIn),
		errors.Is(err, appErr.ErrTableFull):
		response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, appErr.ErrPersistFailed), errors.Is(err, appErr.ErrSnapshotRestore):
		response.Error(c, http.StatusServiceUnavailable, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, err.Error())
	}
}

func tableAndUser(c *gin.Context) (tableID, userID int64, ok bool) {
	tableID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || tableID <= 0 {
		response.Error(c, http.StatusBadRequest, "invalid table id")
		return 0, 0, false
	}
	userID, ok = getUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}
	return tableID, userID, true
}

func parsePositiveIntQuery(c *gin.Context, key string, defaultVal int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func parseTimeWithLayouts(value string) (*time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp, expected RFC3339 or '2006-01-02 15:04:05'")
}
