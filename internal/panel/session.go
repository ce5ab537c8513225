package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"xui_reseller_bot/internal/config"
	"xui_reseller_bot/internal/logging"
)

const (
	// loginFreshness is how long a successful login is trusted before the
	// next request triggers a re-login.
	loginFreshness = 600 * time.Second

	// requestTimeout is the fixed per-call HTTP timeout.
	requestTimeout = 20 * time.Second
)

var (
	// ErrAuthFailed indicates the panel rejected the login or returned no
	// session cookies. Fatal for the in-flight call, not for the process.
	ErrAuthFailed = errors.New("panel authentication failed")

	// ErrUnauthorized indicates a request still received 401 after a
	// forced re-login.
	ErrUnauthorized = errors.New("panel session unauthorized")
)

// Session owns the panel credentials and a renewable authenticated HTTP
// session. Cookies live only in memory and are rebuilt on restart. One
// Session is shared per process; the login state is mutex-guarded so two
// concurrent 401s cannot trigger simultaneous re-logins.
type Session struct {
	client   *http.Client
	baseURL  string
	basePath string
	username string
	password string
	logger   *logrus.Entry

	mu        sync.Mutex
	lastLogin time.Time

	now func() time.Time
}

// NewSession constructs the shared panel session from configuration.
func NewSession(cfg config.Config, logger *logrus.Entry) (*Session, error) {
	if cfg.PanelBaseURL == "" {
		return nil, errors.New("panel base url is required")
	}
	if cfg.PanelUsername == "" || cfg.PanelPassword == "" {
		return nil, errors.New("panel credentials are required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Session{
		client: &http.Client{
			Timeout: requestTimeout,
			Jar:     jar,
		},
		baseURL:  cfg.PanelBaseURL,
		basePath: cfg.PanelWebBasePath,
		username: cfg.PanelUsername,
		password: cfg.PanelPassword,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Do performs an authenticated request against the panel. A login is issued
// first when the freshness window has lapsed. On a 401 response the session
// forces exactly one re-login and retries the request once; a second 401
// surfaces ErrUnauthorized.
func (s *Session) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if s == nil {
		return nil, errors.New("session is not initialized")
	}
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	if err := s.ensureLogin(ctx); err != nil {
		return nil, err
	}

	resp, err := s.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	drain(resp)

	s.logger.WithFields(logging.Fields{
		"event": "panel_relogin",
		"path":  path,
	}).Warn("panel session expired, forcing re-login")

	if err := s.forceLogin(ctx); err != nil {
		return nil, err
	}

	resp, err = s.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, fmt.Errorf("%w: repeated 401 for %s", ErrUnauthorized, path)
	}

	return resp, nil
}

// ensureLogin logs in unless a login succeeded within the freshness window.
func (s *Session) ensureLogin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastLogin.IsZero() && s.now().Sub(s.lastLogin) < loginFreshness {
		return nil
	}

	return s.login(ctx)
}

// forceLogin unconditionally re-authenticates, regardless of freshness.
func (s *Session) forceLogin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.login(ctx)
}

// login must be called with the mutex held.
func (s *Session) login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": s.username,
		"password": s.password,
	})
	if err != nil {
		return fmt.Errorf("marshal login payload: %w", err)
	}

	resp, err := s.request(ctx, http.MethodPost, "/login", payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: login status %d", ErrAuthFailed, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode login response: %v", ErrAuthFailed, err)
	}
	if !env.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, env.Msg)
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("%w: parse base url: %v", ErrAuthFailed, err)
	}
	if len(s.client.Jar.Cookies(base)) == 0 {
		return fmt.Errorf("%w: login returned no session cookies", ErrAuthFailed)
	}

	s.lastLogin = s.now()

	s.logger.WithField("event", "panel_login").Debug("panel login succeeded")

	return nil
}

func (s *Session) request(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+s.basePath+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build panel request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("panel request %s %s: %w", method, path, err)
	}

	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
