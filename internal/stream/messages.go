package stream

import "backend-playerroutes/internal/tracking"

// Server to client message types.
const (
	TypeInit                 = "init"
	TypeSessionStart         = "session_start"
	TypeSessionEnd           = "session_end"
	TypeRoutePoint           = "route_point"
	TypeTimeUpdate           = "time_update"
	TypeRefreshTilesResponse = "refresh_tiles_response"
	TypeCommandResponse      = "command_response"
)

// Client to server message types.
const (
	TypeRefreshTiles   = "refresh_tiles"
	TypeTeleport       = "teleport"
	TypeExecuteCommand = "execute_command"
)

// CloseInvalidToken is the close code sent when the handshake token is rejected.
const CloseInvalidToken = 4001

type initMessage struct {
	Type           string             `json:"type"`
	ActiveSessions []tracking.Session `json:"activeSessions"`
	WorldTime      *int64             `json:"worldTime,omitempty"`
}

type sessionStartMessage struct {
	Type    string           `json:"type"`
	Session tracking.Session `json:"session"`
}

type sessionEndMessage struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"sessionId"`
	PlayerID   string         `json:"playerUuid"`
	PlayerName string         `json:"playerName"`
	EndedAt    *int64         `json:"endedAt"`
	Stats      tracking.Stats `json:"stats"`
}

type routePointMessage struct {
	Type       string              `json:"type"`
	SessionID  string              `json:"sessionId"`
	PlayerID   string              `json:"playerUuid"`
	PlayerName string              `json:"playerName"`
	Point      tracking.RoutePoint `json:"point"`
	WorldTime  int64               `json:"worldTime"`
	Conn       tracking.Conn       `json:"conn"`
}

type timeUpdateMessage struct {
	Type      string `json:"type"`
	WorldTime int64  `json:"worldTime"`
}

type refreshTilesResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type commandResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// inbound is the union of every client request.
type inbound struct {
	Type         string   `json:"type"`
	Dimension    string   `json:"dimension"`
	Player       string   `json:"player"`
	TargetPlayer string   `json:"targetPlayer"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	Z            *float64 `json:"z"`
	Command      string   `json:"command"`
}
