package tracking

import "encoding/json"

// Durable stores keep full precision. The field names match the wire form so
// either encoding decodes into a Session.

type storedPoint struct {
	T   int64   `json:"t"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Dim string  `json:"dim"`
}

type storedStats struct {
	Samples    int     `json:"samples"`
	DistanceXZ float64 `json:"distanceXZ"`
}

type storedSession struct {
	ID         string        `json:"_id"`
	PlayerID   string        `json:"playerUuid"`
	PlayerName string        `json:"playerName"`
	StartedAt  int64         `json:"startedAt"`
	EndedAt    *int64        `json:"endedAt,omitempty"`
	Active     bool          `json:"active"`
	LastSeenAt int64         `json:"lastSeenAt"`
	Stats      storedStats   `json:"stats"`
	Path       []storedPoint `json:"path"`
}

func toStoredPath(path []RoutePoint) []storedPoint {
	out := make([]storedPoint, len(path))
	for i, p := range path {
		out[i] = storedPoint{T: p.Timestamp, X: p.X, Y: p.Y, Z: p.Z, Dim: p.Dimension}
	}
	return out
}

func fromStoredPath(path []storedPoint) []RoutePoint {
	out := make([]RoutePoint, len(path))
	for i, p := range path {
		out[i] = RoutePoint{Timestamp: p.T, X: p.X, Y: p.Y, Z: p.Z, Dimension: p.Dim}
	}
	return out
}

// EncodePath is the unrounded JSON form of a path.
func EncodePath(path []RoutePoint) ([]byte, error) {
	return json.Marshal(toStoredPath(path))
}

func DecodePath(data []byte) ([]RoutePoint, error) {
	var raw []storedPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromStoredPath(raw), nil
}

// EncodeRecord is the unrounded, indented JSON document of s.
func EncodeRecord(s Session) ([]byte, error) {
	return json.MarshalIndent(storedSession{
		ID:         s.ID,
		PlayerID:   s.PlayerID,
		PlayerName: s.PlayerName,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Active:     s.Active,
		LastSeenAt: s.LastSeenAt,
		Stats:      storedStats{Samples: s.Stats.Samples, DistanceXZ: s.Stats.DistanceXZ},
		Path:       toStoredPath(s.Path),
	}, "", "  ")
}

func DecodeRecord(data []byte) (Session, error) {
	var raw storedSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, err
	}
	return Session{
		ID:         raw.ID,
		PlayerID:   raw.PlayerID,
		PlayerName: raw.PlayerName,
		StartedAt:  raw.StartedAt,
		EndedAt:    raw.EndedAt,
		Active:     raw.Active,
		LastSeenAt: raw.LastSeenAt,
		Stats:      Stats{Samples: raw.Stats.Samples, DistanceXZ: raw.Stats.DistanceXZ},
		Path:       fromStoredPath(raw.Path),
	}, nil
}
