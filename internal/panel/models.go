// Package panel implements the authenticated session and typed client for
// the x-ui panel HTTP API.
package panel

import "encoding/json"

// envelope is the JSON wrapper the panel puts around every API response.
type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Client is an individual credentialed user of an inbound. Depending on
// where the panel embeds it, quota and expiry arrive under different keys;
// Quota and Expiry resolve the fallbacks.
type Client struct {
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"`
	Expire     int64  `json:"expire"`
}

// Quota returns the total byte quota, 0 meaning unlimited.
func (c Client) Quota() int64 {
	if c.Total != 0 {
		return c.Total
	}
	return c.TotalGB
}

// Expiry returns the expiry timestamp in milliseconds, 0 meaning no expiry.
func (c Client) Expiry() int64 {
	if c.ExpiryTime != 0 {
		return c.ExpiryTime
	}
	return c.Expire
}

// Inbound is a configured traffic-forwarding endpoint on the panel. The
// client list may arrive nested inside the settings document (which itself
// may be a JSON-encoded string) or directly on the inbound.
type Inbound struct {
	ID      int64           `json:"id"`
	Remark  string          `json:"remark"`
	Up      int64           `json:"up"`
	Down    int64           `json:"down"`
	Total   int64           `json:"total"`
	Enable  bool            `json:"enable"`
	Settings json.RawMessage `json:"settings"`
	Clients []Client        `json:"clients"`
}

type inboundSettings struct {
	Clients *[]Client `json:"clients"`
}

// ClientList returns the inbound's clients, preferring the nested settings
// location over the top-level list. A client is never taken from both.
func (ib Inbound) ClientList() []Client {
	if len(ib.Settings) > 0 {
		raw := ib.Settings

		// Settings is usually a JSON document serialized into a string.
		var encoded string
		if json.Unmarshal(raw, &encoded) == nil {
			raw = []byte(encoded)
		}

		var settings inboundSettings
		if json.Unmarshal(raw, &settings) == nil && settings.Clients != nil {
			return *settings.Clients
		}
	}

	return ib.Clients
}

// TrafficRecord is the per-client usage record returned by the panel.
type TrafficRecord struct {
	ID         int64  `json:"id"`
	InboundID  int64  `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	ExpiryTime int64  `json:"expiryTime"`
}

// Snapshot combines the inbound list and the online client set fetched at
// one point in time. It is never persisted.
type Snapshot struct {
	Inbounds []Inbound
	Online   map[string]struct{}
}

// IsOnline reports whether the given client email is currently online.
func (s Snapshot) IsOnline(email string) bool {
	_, ok := s.Online[email]
	return ok
}

// InboundIDs returns the ids of every inbound in the snapshot.
func (s Snapshot) InboundIDs() []int64 {
	ids := make([]int64, 0, len(s.Inbounds))
	for _, ib := range s.Inbounds {
		ids = append(ids, ib.ID)
	}
	return ids
}
