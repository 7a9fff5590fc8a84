// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/NovelForgeAI/NovelForge/internal/services"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 生产环境应做更严格的来源检查
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// wsAdvanceRequest 客户端发起推进的消息体
type wsAdvanceRequest struct {
	ChoiceID   string `json:"choice_id"`
	CustomText string `json:"custom_text"`
}

// AdvanceStoryWebSocket 通过WebSocket推进故事。
//
// 协议：客户端连接后发送一条JSON消息{choice_id, custom_text}，
// 服务端把流式推进事件逐条以JSON文本帧推送，complete或error
// 后关闭连接。连接期间以ping/pong维持心跳。
func (h *Handler) AdvanceStoryWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败", map[string]interface{}{"error": err})
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	var req wsAdvanceRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeWSEvent(conn, services.StreamEvent{
			Type:    services.StreamEventError,
			Message: "请求格式错误: " + err.Error(),
		})
		return
	}

	ctx, cancel := generationContext(c.Request.Context())
	defer cancel()

	// 心跳与读取哨兵：客户端断开时取消生成
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	events := h.StoryService.AdvanceStoryStream(ctx, c.Param("id"), req.ChoiceID, req.CustomText)
	for event := range events {
		if err := h.writeWSEvent(conn, event); err != nil {
			cancel()
			return
		}
		if event.Type == services.StreamEventComplete || event.Type == services.StreamEventError {
			break
		}
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Handler) writeWSEvent(conn *websocket.Conn, event services.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
