package handlers

import (
	"github.com/anjiri1684/crypto_academy/services"
	"github.com/anjiri1684/crypto_academy/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// WalletFeed upgrades authenticated clients onto the live wallet event hub.
type WalletFeed struct {
	accounts *services.AccountService
	hub      *websocket.Hub
	log      zerolog.Logger
}

func NewWalletFeed(accounts *services.AccountService, hub *websocket.Hub, log zerolog.Logger) *WalletFeed {
	return &WalletFeed{accounts: accounts, hub: hub, log: log}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeWs expects {"type":"auth","token":...} as the first frame.
func (h *WalletFeed) ServeWs(c *websocketcontrib.Conn) {
	var auth wsAuthMessage
	if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
		h.log.Debug().Err(err).Msg("websocket auth failed: invalid or missing auth message")
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	userID, _, err := h.accounts.ParseToken(auth.Token)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket auth failed: invalid token")
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	client := &websocket.Client{UserID: userID, Conn: c}
	if !h.hub.Register(client) {
		c.Close()
		return
	}
	defer func() {
		h.hub.Unregister(client)
		c.Close()
	}()

	// the feed is one-way; reads only detect the client going away
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure, websocketcontrib.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Str("user_id", userID.String()).Msg("websocket read error")
			}
			return
		}
	}
}
