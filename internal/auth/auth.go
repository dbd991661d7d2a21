// Package auth 管理 Google / Microsoft 的 OAuth 授权流程与按会话保存的令牌。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"davinci-agent/internal/model"
	"davinci-agent/internal/session"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// stateTTL 授权 state 的有效期
const stateTTL = 10 * time.Minute

var (
	googleScopes = []string{
		"https://www.googleapis.com/auth/gmail.readonly",
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/tasks",
		"https://www.googleapis.com/auth/calendar",
	}
	microsoftScopes = []string{"User.Read", "Mail.Read", "Mail.Send", "offline_access"}
)

// ProviderConfig 单个提供方的 OAuth 配置
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant 仅 Microsoft 使用，默认 common
	Tenant  string
	Enabled bool
	// AuthURL / TokenURL 覆盖默认端点，测试时使用
	AuthURL  string
	TokenURL string
}

// ErrInvalidState 回调 state 不存在或已过期
var ErrInvalidState = errors.New("invalid or expired oauth state")

type pendingLogin struct {
	sessionID string
	provider  string
	expires   time.Time
}

// Manager 按会话提供凭证；实现 dialogue.Credentials
type Manager struct {
	configs map[string]*oauth2.Config
	tokens  session.TokenStore
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	states map[string]pendingLogin
}

// NewManager 创建凭证管理器；未启用的提供方不会注册
func NewManager(google, microsoft ProviderConfig, tokens session.TokenStore, log *slog.Logger) *Manager {
	m := &Manager{
		configs: make(map[string]*oauth2.Config),
		tokens:  tokens,
		log:     log,
		now:     time.Now,
		states:  make(map[string]pendingLogin),
	}
	if google.Enabled {
		m.configs[ProviderGoogle] = oauthConfig(google, endpoints.Google, googleScopes)
	}
	if microsoft.Enabled {
		tenant := microsoft.Tenant
		if tenant == "" {
			tenant = "common"
		}
		m.configs[ProviderMicrosoft] = oauthConfig(microsoft, endpoints.AzureAD(tenant), microsoftScopes)
	}
	return m
}

func oauthConfig(p ProviderConfig, ep oauth2.Endpoint, scopes []string) *oauth2.Config {
	if p.AuthURL != "" {
		ep.AuthURL = p.AuthURL
	}
	if p.TokenURL != "" {
		ep.TokenURL = p.TokenURL
	}
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       scopes,
		Endpoint:     ep,
	}
}

func (m *Manager) config(provider string) (*oauth2.Config, error) {
	cfg, ok := m.configs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrProviderDisabled, provider)
	}
	return cfg, nil
}

// LoginURL 返回本服务的登录入口，登录完成后令牌归属该会话
func (m *Manager) LoginURL(sessionID, provider string) string {
	return "/auth/" + url.PathEscape(provider) + "/login?session_id=" + url.QueryEscape(sessionID)
}

// AuthCodeURL 生成提供方授权页地址并记录 state
func (m *Manager) AuthCodeURL(sessionID, provider string) (string, error) {
	cfg, err := m.config(provider)
	if err != nil {
		return "", err
	}
	state := uuid.NewString()
	m.mu.Lock()
	m.gcLocked()
	m.states[state] = pendingLogin{sessionID: sessionID, provider: provider, expires: m.now().Add(stateTTL)}
	m.mu.Unlock()
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange 处理回调：校验 state，用 code 换取令牌并保存到对应会话，返回会话 ID
func (m *Manager) Exchange(ctx context.Context, provider, state, code string) (string, error) {
	cfg, err := m.config(provider)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	pending, ok := m.states[state]
	delete(m.states, state)
	m.mu.Unlock()
	if !ok || pending.provider != provider || m.now().After(pending.expires) {
		return "", ErrInvalidState
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange %s code: %w", provider, err)
	}
	if err := m.save(ctx, pending.sessionID, provider, tok); err != nil {
		return "", err
	}
	m.log.Info("oauth login completed", "session", pending.sessionID, "provider", provider)
	return pending.sessionID, nil
}

// Get 返回会话的有效凭证；令牌过期时自动刷新，无令牌或刷新失败返回 MissingCredentialsError
func (m *Manager) Get(ctx context.Context, sessionID, provider string) (model.Credentials, error) {
	cfg, err := m.config(provider)
	if err != nil {
		return model.Credentials{}, err
	}
	raw, err := m.tokens.LoadToken(ctx, sessionID, provider)
	if errors.Is(err, session.ErrNotFound) {
		return model.Credentials{}, &model.MissingCredentialsError{Provider: provider}
	}
	if err != nil {
		return model.Credentials{}, fmt.Errorf("load %s token: %w", provider, err)
	}
	var tok oauth2.Token
	if err := sonic.Unmarshal(raw, &tok); err != nil {
		return model.Credentials{}, fmt.Errorf("decode %s token: %w", provider, err)
	}

	fresh, err := cfg.TokenSource(ctx, &tok).Token()
	if err != nil {
		m.log.Warn("token refresh failed", "session", sessionID, "provider", provider, "error", err)
		return model.Credentials{}, &model.MissingCredentialsError{Provider: provider}
	}
	if fresh.AccessToken != tok.AccessToken {
		if err := m.save(ctx, sessionID, provider, fresh); err != nil {
			return model.Credentials{}, err
		}
	}
	return model.Credentials{
		Provider:    provider,
		AccessToken: fresh.AccessToken,
		TokenType:   fresh.Type(),
		Expiry:      fresh.Expiry,
	}, nil
}

func (m *Manager) save(ctx context.Context, sessionID, provider string, tok *oauth2.Token) error {
	raw, err := sonic.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode %s token: %w", provider, err)
	}
	if err := m.tokens.SaveToken(ctx, sessionID, provider, raw); err != nil {
		return fmt.Errorf("save %s token: %w", provider, err)
	}
	return nil
}

// gcLocked 清理过期 state，调用方需持有 mu
func (m *Manager) gcLocked() {
	now := m.now()
	for k, v := range m.states {
		if now.After(v.expires) {
			delete(m.states, k)
		}
	}
}
