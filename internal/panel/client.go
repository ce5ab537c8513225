package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/logging"
)

// API endpoint paths, relative to the configured web base path.
const (
	pathInboundList    = "/panel/api/inbounds/list"
	pathOnlineClients  = "/panel/api/inbounds/onlines"
	pathClientTraffics = "/panel/api/inbounds/getClientTraffics/"
)

// APIClient exposes typed operations against the panel, routed through the
// shared session.
type APIClient struct {
	session *Session
	logger  *logrus.Entry
}

// NewAPIClient constructs an APIClient over the given session.
func NewAPIClient(session *Session, logger *logrus.Entry) *APIClient {
	if logger == nil {
		logger = logging.Logger()
	}

	return &APIClient{
		session: session,
		logger:  logger,
	}
}

// ListInbounds fetches every inbound configured on the panel.
func (c *APIClient) ListInbounds(ctx context.Context) ([]Inbound, error) {
	var inbounds []Inbound
	if err := c.call(ctx, http.MethodGet, pathInboundList, nil, &inbounds); err != nil {
		return nil, err
	}

	return inbounds, nil
}

// ListOnlineEmails fetches the set of currently-online client emails. A null
// or empty response is an empty set, not an error.
func (c *APIClient) ListOnlineEmails(ctx context.Context) (map[string]struct{}, error) {
	var emails []string
	if err := c.call(ctx, http.MethodPost, pathOnlineClients, []byte{}, &emails); err != nil {
		return nil, err
	}

	online := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		online[email] = struct{}{}
	}

	return online, nil
}

// ClientTraffic fetches the usage record for one client. The email is placed
// in the path as-is; callers escape it when needed.
func (c *APIClient) ClientTraffic(ctx context.Context, email string) (TrafficRecord, error) {
	var record TrafficRecord
	if err := c.call(ctx, http.MethodGet, pathClientTraffics+email, nil, &record); err != nil {
		return TrafficRecord{}, err
	}

	return record, nil
}

// FetchSnapshot combines the inbound list and the online set into one
// point-in-time snapshot.
func (c *APIClient) FetchSnapshot(ctx context.Context) (Snapshot, error) {
	inbounds, err := c.ListInbounds(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	online, err := c.ListOnlineEmails(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Inbounds: inbounds,
		Online:   online,
	}, nil
}

func (c *APIClient) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if c == nil || c.session == nil {
		return fmt.Errorf("panel client is not initialized")
	}

	resp, err := c.session.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("panel responded %d for %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode panel response for %s: %w", path, err)
	}
	if !env.Success {
		return fmt.Errorf("panel request %s rejected: %s", path, env.Msg)
	}

	if out == nil || len(env.Obj) == 0 || string(env.Obj) == "null" {
		return nil
	}

	if err := json.Unmarshal(env.Obj, out); err != nil {
		return fmt.Errorf("decode panel payload for %s: %w", path, err)
	}

	return nil
}
