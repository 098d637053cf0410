package stream

import (
	"time"

	"backend-playerroutes/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const writeWait = 5 * time.Second

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, auth.CaptureToken())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := hub.Accept(c.RemoteAddr().String())
		defer hub.Disconnect(client)

		token, _ := c.Locals(auth.LocalsKey).(string)
		if !hub.Authenticate(client, token) {
			msg := websocket.FormatCloseMessage(CloseInvalidToken, "Invalid authentication token")
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case msg := <-client.Send:
					_ = c.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
						hub.Disconnect(client)
						return
					}
				case <-client.Done():
					msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
					_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			hub.HandleMessage(hub.ctx, client, msg)
		}
		hub.Disconnect(client)
		<-done
	}))
}
