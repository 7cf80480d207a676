// Package session manages an authenticated portal session: form login
// with anti-forgery token handling, verification, transparent
// re-authentication on expiry, and scoped login/logout.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/nhle/lms-monitor/internal/model"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// maxBodyBytes caps how much of any portal response is read.
const maxBodyBytes = 16 << 20

var (
	failureIndicators = []string{
		"invalid login",
		"invalid credentials",
		"login failed",
		"incorrect password",
		"authentication failed",
		"login required",
	}
	successIndicators = []string{"logout", "my workspace", "my sites"}
)

// Option customizes a Manager.
type Option func(*Manager)

// WithHTTPClient replaces the HTTP client. A cookie jar is attached when
// the client has none.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.client = c }
}

// WithRetryTimer replaces the timer used to wait between login attempts.
func WithRetryTimer(t backoff.Timer) Option {
	return func(m *Manager) { m.timer = t }
}

// Manager owns the HTTP session with the portal. It is safe for use by a
// single run at a time.
type Manager struct {
	cfg     model.PortalConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	timer   backoff.Timer

	mu     sync.Mutex
	state  State
	userID string
}

// NewManager creates a session manager for the configured portal.
func NewManager(cfg model.PortalConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LoginAttempts < 1 {
		cfg.LoginAttempts = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	m := &Manager{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.client == nil {
		m.client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if m.client.Jar == nil {
		m.client.Jar = newJar()
	}

	return m
}

func newJar() http.CookieJar {
	// cookiejar.New only fails on a nil options struct with a broken list.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// BaseURL returns the portal root URL without a trailing slash.
func (m *Manager) BaseURL() string { return m.cfg.BaseURL }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// UserID returns the verified user id, or "" when not authenticated.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	if s == StateUnauthenticated {
		m.userID = ""
	}
	m.mu.Unlock()
}

// Login authenticates with the portal. Transient network errors are
// retried with exponential backoff; rejected credentials are not.
func (m *Manager) Login(ctx context.Context) error {
	m.setState(StateAuthenticating)

	attempt := 0
	login := func() (string, error) {
		attempt++
		userID, err := m.attemptLogin(ctx)
		if err != nil && !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return userID, err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("login attempt failed, retrying",
			"attempt", attempt, "wait", wait, "error", err)
	}

	userID, err := backoff.RetryNotifyWithTimerAndData(login, m.loginBackOff(ctx), notify, m.timer)
	if err != nil {
		m.setState(StateUnauthenticated)
		if IsTransient(err) {
			return &AuthError{
				Message: fmt.Sprintf("login failed after %d attempts", attempt),
				Err:     err,
			}
		}
		return err
	}

	m.mu.Lock()
	m.state = StateAuthenticated
	m.userID = userID
	m.mu.Unlock()
	m.logger.Info("logged in", "user", userID)
	return nil
}

// loginBackOff doubles the configured wait after every failed attempt and
// stops after LoginAttempts tries or when ctx ends.
func (m *Manager) loginBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.LoginBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = math.MaxInt64
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.LoginAttempts-1)), ctx)
}

// attemptLogin performs one login round trip and returns the verified user.
func (m *Manager) attemptLogin(ctx context.Context) (string, error) {
	page, err := m.fetch(ctx, http.MethodGet, m.cfg.LoginPath, nil, "")
	if err != nil {
		return "", err
	}
	if !isSuccess(page.status) {
		return "", &AuthError{Message: fmt.Sprintf("login page returned status %d", page.status)}
	}

	form, err := parseLoginForm(page.body)
	if err != nil {
		return "", &AuthError{Message: "unreadable login page", Err: err}
	}

	action := page.url.String()
	if form.action != "" {
		ref, err := url.Parse(form.action)
		if err != nil {
			return "", &AuthError{Message: "invalid login form action", Err: err}
		}
		action = page.url.ResolveReference(ref).String()
	}

	data := url.Values{}
	data.Set("eid", m.cfg.Username)
	data.Set("pw", m.cfg.Password)
	data.Set("submit", "Log in")
	if form.token != "" {
		data.Set("sakai_csrf_token", form.token)
		if form.tokenField != "" && form.tokenField != "sakai_csrf_token" {
			data.Set(form.tokenField, form.token)
		}
	}

	resp, err := m.fetch(ctx, http.MethodPost, action, strings.NewReader(data.Encode()),
		"application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	if !isSuccess(resp.status) {
		return "", &AuthError{Message: fmt.Sprintf("login returned status %d", resp.status)}
	}

	return m.verify(ctx, resp.body)
}

// sessionInfo is the subset of the introspection payload we read.
type sessionInfo struct {
	UserID  *string `json:"userId"`
	UserEID *string `json:"userEid"`
}

// verify confirms the login. The introspection endpoint is authoritative
// when it answers with JSON; otherwise the login response text decides.
func (m *Manager) verify(ctx context.Context, loginBody []byte) (string, error) {
	if m.cfg.SessionPath != "" {
		user, authoritative, err := m.introspect(ctx)
		if err != nil {
			return "", err
		}
		if authoritative {
			if user == "" {
				return "", &AuthError{Message: "invalid credentials: session has no user"}
			}
			return user, nil
		}
		m.logger.Debug("session introspection unavailable, checking page text")
	}

	text := strings.ToLower(string(loginBody))
	for _, indicator := range failureIndicators {
		if strings.Contains(text, indicator) {
			return "", &AuthError{Message: "invalid credentials: portal reported " + indicator}
		}
	}
	for _, indicator := range successIndicators {
		if strings.Contains(text, indicator) {
			if user := findCurrentUser(loginBody); user != "" {
				return user, nil
			}
			return m.cfg.Username, nil
		}
	}

	return "", &AuthError{Message: "could not verify login"}
}

func (m *Manager) introspect(ctx context.Context) (user string, authoritative bool, err error) {
	resp, err := m.fetch(ctx, http.MethodGet, m.cfg.SessionPath, nil, "")
	if err != nil {
		return "", false, err
	}
	if resp.status != http.StatusOK {
		return "", false, nil
	}

	var info sessionInfo
	if err := json.Unmarshal(resp.body, &info); err != nil {
		return "", false, nil
	}
	if info.UserID == nil || *info.UserID == "" {
		return "", true, nil
	}
	if info.UserEID != nil && *info.UserEID != "" {
		return *info.UserEID, true, nil
	}
	return *info.UserID, true, nil
}

// Get fetches path with the authenticated session. When the portal
// bounces the request to the login page, the manager logs in again and
// retries once; a second bounce returns ErrSessionExpired.
func (m *Manager) Get(ctx context.Context, path string) ([]byte, error) {
	if m.State() != StateAuthenticated {
		return nil, ErrNotAuthenticated
	}

	resp, err := m.fetch(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	if m.landedOnLogin(resp, path) {
		m.setState(StateExpired)
		m.logger.Info("session expired, re-authenticating", "path", path)

		if err := m.Login(ctx); err != nil {
			return nil, fmt.Errorf("re-authenticating for %s: %w", path, err)
		}

		resp, err = m.fetch(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return nil, err
		}
		if m.landedOnLogin(resp, path) {
			m.setState(StateExpired)
			return nil, fmt.Errorf("GET %s: %w", path, ErrSessionExpired)
		}
	}

	if !isSuccess(resp.status) {
		return nil, &HTTPStatusError{Method: http.MethodGet, Path: path, StatusCode: resp.status}
	}
	return resp.body, nil
}

// GetJSON fetches path and decodes the JSON body into out.
func (m *Manager) GetJSON(ctx context.Context, path string, out any) error {
	body, err := m.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Logout ends the portal session. Local state is always cleared, even
// when the logout request fails.
func (m *Manager) Logout(ctx context.Context) error {
	var err error
	if m.cfg.LogoutPath != "" && m.State() != StateUnauthenticated {
		_, err = m.fetch(ctx, http.MethodGet, m.cfg.LogoutPath, nil, "")
	}

	m.client.Jar = newJar()
	m.setState(StateUnauthenticated)

	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	m.logger.Debug("logged out")
	return nil
}

func (m *Manager) landedOnLogin(resp *response, requested string) bool {
	if strings.HasPrefix(requested, m.cfg.LoginPath) {
		return false
	}
	return strings.HasPrefix(resp.url.Path, m.cfg.LoginPath)
}

type response struct {
	url    *url.URL
	status int
	body   []byte
}

// fetch performs one request, following redirects, and reads the body.
// target is either a path relative to the base URL or an absolute URL.
func (m *Manager) fetch(
	ctx context.Context,
	method string,
	target string,
	body io.Reader,
	contentType string,
) (*response, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	rawURL := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		rawURL = m.cfg.BaseURL + target
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(method+" "+target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError("reading "+target, err)
	}

	final := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}

	return &response{url: final, status: resp.StatusCode, body: bytes.TrimSpace(data)}, nil
}
