package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/replbox/replbox/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now; tighten in production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// executeStream runs one execution over a websocket, forwarding kernel
// output as it arrives instead of buffering the whole record. The first
// client frame carries the execute request; every subsequent frame is
// server to client.
func (s *Server) executeStream(c echo.Context) error {
	sb, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	var req types.ExecuteRequest
	if err := ws.ReadJSON(&req); err != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "expected a JSON execute request"),
			time.Now().Add(time.Second))
		return nil
	}

	// A failed write means the client went away; cancelling the context
	// stops the execution pump instead of letting it run to completion
	// against a dead connection.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	emit := func(ev types.StreamEvent) {
		if err := ws.WriteJSON(ev); err != nil {
			cancel()
		}
	}

	rec, err := sb.ExecuteStream(ctx, req.Code, emit)
	if err != nil {
		reason := err.Error()
		if len(reason) > 120 {
			reason = reason[:120]
		}
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason),
			time.Now().Add(time.Second))
		return nil
	}

	ws.WriteJSON(types.StreamEvent{Type: "done", Record: rec})
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return nil
}
