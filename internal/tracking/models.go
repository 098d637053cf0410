package tracking

import (
	"encoding/json"
	"errors"

	"backend-playerroutes/internal/shared/geo"
)

var ErrNotFound = errors.New("session not found")

// RoutePoint is one recorded sample. Timestamp is milliseconds since epoch.
// Coordinates keep full precision in memory and are rounded to 0.1 on the wire.
type RoutePoint struct {
	Timestamp int64
	X         float64
	Y         float64
	Z         float64
	Dimension string
}

type routePointJSON struct {
	T   int64   `json:"t"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Dim string  `json:"dim"`
}

func (p RoutePoint) DistanceXZ(o RoutePoint) float64 {
	return geo.DistanceXZ(p.X, p.Z, o.X, o.Z)
}

func (p RoutePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(routePointJSON{
		T:   p.Timestamp,
		X:   geo.Round1(p.X),
		Y:   geo.Round1(p.Y),
		Z:   geo.Round1(p.Z),
		Dim: p.Dimension,
	})
}

func (p *RoutePoint) UnmarshalJSON(data []byte) error {
	var raw routePointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = RoutePoint{Timestamp: raw.T, X: raw.X, Y: raw.Y, Z: raw.Z, Dimension: raw.Dim}
	return nil
}

// Stats accumulate incrementally as points are accepted.
type Stats struct {
	Samples    int
	DistanceXZ float64
}

type statsJSON struct {
	Samples    int     `json:"samples"`
	DistanceXZ float64 `json:"distanceXZ"`
}

func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{Samples: s.Samples, DistanceXZ: geo.Round1(s.DistanceXZ)})
}

func (s *Stats) UnmarshalJSON(data []byte) error {
	var raw statsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Stats{Samples: raw.Samples, DistanceXZ: raw.DistanceXZ}
	return nil
}

// Session is one continuous presence of one player. Active is true exactly
// while EndedAt is nil. Times are milliseconds since epoch.
type Session struct {
	ID         string       `json:"_id"`
	PlayerID   string       `json:"playerUuid"`
	PlayerName string       `json:"playerName"`
	StartedAt  int64        `json:"startedAt"`
	EndedAt    *int64       `json:"endedAt,omitempty"`
	Active     bool         `json:"active"`
	LastSeenAt int64        `json:"lastSeenAt"`
	PingMs     int          `json:"-"`
	Stats      Stats        `json:"stats"`
	Path       []RoutePoint `json:"path"`
}

func NewSession(id, playerID, playerName string, startedAt int64) *Session {
	return &Session{
		ID:         id,
		PlayerID:   playerID,
		PlayerName: playerName,
		StartedAt:  startedAt,
		Active:     true,
		LastSeenAt: startedAt,
		Path:       []RoutePoint{},
	}
}

// AddPoint appends p, first evicting the oldest fifth of the path when it is
// already at maxPoints. Ended sessions are not modified.
func (s *Session) AddPoint(p RoutePoint, maxPoints int) bool {
	if !s.Active {
		return false
	}

	if n := len(s.Path); n > 0 {
		if last := s.Path[n-1]; p.Timestamp < last.Timestamp {
			p.Timestamp = last.Timestamp
		}
	}

	if maxPoints > 0 && len(s.Path) > 0 && len(s.Path) >= maxPoints {
		evict := maxPoints / 5
		if evict < 1 {
			evict = 1
		}
		if evict > len(s.Path) {
			evict = len(s.Path)
		}
		n := copy(s.Path, s.Path[evict:])
		s.Path = s.Path[:n]
	}

	if n := len(s.Path); n > 0 {
		s.Stats.DistanceXZ += p.DistanceXZ(s.Path[n-1])
	}
	s.Path = append(s.Path, p)
	s.Stats.Samples++
	if p.Timestamp > s.LastSeenAt {
		s.LastSeenAt = p.Timestamp
	}
	return true
}

// End marks the session terminal. Ending twice keeps the first end time.
func (s *Session) End(at int64) {
	if !s.Active {
		return
	}
	if at < s.LastSeenAt {
		at = s.LastSeenAt
	}
	s.Active = false
	s.EndedAt = &at
	s.LastSeenAt = at
}

func (s *Session) UpdatePing(ms int) {
	if s.Active {
		s.PingMs = ms
	}
}

func (s *Session) LastPoint() (RoutePoint, bool) {
	if len(s.Path) == 0 {
		return RoutePoint{}, false
	}
	return s.Path[len(s.Path)-1], true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Session) Clone() Session {
	c := s.header()
	c.Path = make([]RoutePoint, len(s.Path))
	copy(c.Path, s.Path)
	return c
}

// header copies everything but the path.
func (s *Session) header() Session {
	c := *s
	c.Path = nil
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return c
}

type Conn struct {
	Online bool `json:"online"`
	PingMs int  `json:"pingMs"`
}

// Summary is the compact listing view of a session.
type Summary struct {
	SessionID  string      `json:"sessionId"`
	PlayerID   string      `json:"playerUuid"`
	PlayerName string      `json:"playerName"`
	StartedAt  int64       `json:"startedAt"`
	EndedAt    *int64      `json:"endedAt,omitempty"`
	Active     bool        `json:"active"`
	LastSeenAt int64       `json:"lastSeenAt"`
	Stats      Stats       `json:"stats"`
	LastPoint  *RoutePoint `json:"lastPoint,omitempty"`
	Conn       Conn        `json:"conn"`
}

func (s *Session) Summary() Summary {
	sum := Summary{
		SessionID:  s.ID,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Active:     s.Active,
		LastSeenAt: s.LastSeenAt,
		Stats:      s.Stats,
		Conn:       Conn{Online: s.Active, PingMs: s.PingMs},
	}
	if p, ok := s.LastPoint(); ok {
		sum.LastPoint = &p
	}
	return sum
}
