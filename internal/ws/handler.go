package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"holdem-service/internal/service/table"
	pkgAuth "holdem-service/pkg/auth"
	appErr "holdem-service/pkg/errors"
	"holdem-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Handler struct {
	tableSvc *table.Service
}

func NewHandler(tableSvc *table.Service) *Handler {
	return &Handler{tableSvc: tableSvc}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

func (h *Handler) HandleTableWS(c *gin.Context) {
	tableIDStr := c.Param("tableId")
	tableID, err := strconv.ParseInt(tableIDStr, 10, 64)
	if err != nil || tableID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
		return
	}

	token, err := getTokenFromRequest(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	claims, err := pkgAuth.ParseUserToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := claims.SubjectID

	if err := h.tableSvc.ValidateAccess(c.Request.Context(), tableID, userID); err != nil {
		switch {
		case errors.Is(err, appErr.ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		case errors.Is(err, appErr.ErrTableEnded):
			c.JSON(http.StatusGone, gin.H{"error": "table has ended"})
		case errors.Is(err, appErr.ErrTableAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "table access denied"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate table access"})
		}
		return
	}

	rt, err := h.tableSvc.EnsureTable(c.Request.Context(), tableID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load table"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	logger.Log.Info("New WebSocket connection",
		zap.Int64("tableID", tableID),
		zap.Int64("userID", userID),
	)

	client := newClient(conn, userID, tableID, rt, h.tableSvc)
	client.run()
}

func getTokenFromRequest(c *gin.Context) (string, error) {
	token := strings.TrimSpace(c.Query("token"))
	if token != "" {
		return token, nil
	}
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
			if token != "" {
				return token, nil
			}
		}
	}
	return "", errors.New("missing token")
}

type client struct {
	conn      *websocket.Conn
	userID    int64
	tableID   int64
	rt        *table.TableRuntime
	svc       *table.Service
	outbound  <-chan table.OutgoingMessage
	done      chan struct{}
	pingEvery time.Duration
}

func newClient(conn *websocket.Conn, userID, tableID int64, rt *table.TableRuntime, svc *table.Service) *client {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	return &client{
		conn:      conn,
		userID:    userID,
		tableID:   tableID,
		rt:        rt,
		svc:       svc,
		outbound:  rt.Subscribe(userID),
		done:      make(chan struct{}),
		pingEvery: 25 * time.Second,
	}
}

func (c *client) run() {
	go c.writePump()
	c.pushState(context.Background())
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.rt.Unsubscribe(c.userID)
		c.conn.Close()
	}()

	for {
		mt, message, err := c.conn.ReadMessage()
		if err != nil {
			logger.Log.Info("WS read error", zap.Error(err), zap.Int64("userID", c.userID), zap.Int64("tableID", c.tableID))
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var incoming struct {
			Type string `json:"type"`
			Data struct {
				Amount int64 `json:"amount"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &incoming); err != nil {
			c.safeWrite(table.OutgoingMessage{
				Type: "error",
				Seq:  0,
				Data: gin.H{"message": "invalid payload"},
			})
			continue
		}

		ctx := context.Background()
		switch incoming.Type {
		case "":
			continue
		case "ping":
			c.safeWrite(table.OutgoingMessage{Type: "pong", Seq: 0, Data: gin.H{"message": "pong"}})
		case "state":
			c.pushState(ctx)
		case "start":
			if _, err := c.svc.StartGame(ctx, c.tableID, c.userID); err != nil {
				c.writeError(err)
			}
		case table.ActionFold, table.ActionCheck, table.ActionCall, table.ActionRaise, table.ActionReady:
			if _, err := c.svc.HandleAction(ctx, c.tableID, c.userID, incoming.Type, incoming.Data.Amount); err != nil {
				c.writeError(err)
			}
		default:
			c.writeError(fmt.Errorf("%w: %q", appErr.ErrIllegalAction, incoming.Type))
		}
	}
}

func (c *client) pushState(ctx context.Context) {
	state, err := c.svc.GetState(ctx, c.tableID, c.userID)
	if err != nil {
		c.writeError(err)
		return
	}
	c.safeWrite(table.OutgoingMessage{Type: "state", Seq: 0, Data: state})
}

func (c *client) writeError(err error) {
	c.safeWrite(table.OutgoingMessage{
		Type: "error",
		Seq:  0,
		Data: gin.H{"message": fmt.Sprintf("action failed: %v", err)},
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.userID), zap.Int64("tableID", c.tableID))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) safeWrite(msg table.OutgoingMessage) {
	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Log.Info("WS write error", zap.Error(err), zap.Int64("userID", c.userID), zap.Int64("tableID", c.tableID))
	}
}
