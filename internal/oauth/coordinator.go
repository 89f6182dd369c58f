package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
)

// FallbackKey is the well-known storage key the redirect target writes the
// authorization response to.
const FallbackKey = "oauth_callback_payload"

// CoordinatorConfig holds configuration for the handshake coordinator.
type CoordinatorConfig struct {
	ClientID      string
	RedirectURI   string
	Scopes        []string
	Timeout       time.Duration
	FallbackGrace time.Duration
	Caller        Rect
	PopupWidth    int
	PopupHeight   int
}

// Coordinator runs one PKCE handshake at a time: it opens the popup, races the
// message channel against the storage fallback and verifies the state token
// before exchanging the code.
type Coordinator struct {
	builder   *AuthorizeURLBuilder
	pkce      *PKCEStore
	kv        KeyValueStore
	exchanger *TokenExchanger
	bus       *MessageBus
	opener    Opener
	origins   *OriginPolicy
	cfg       CoordinatorConfig
}

// NewCoordinator creates a new handshake coordinator.
func NewCoordinator(
	builder *AuthorizeURLBuilder,
	pkce *PKCEStore,
	kv KeyValueStore,
	exchanger *TokenExchanger,
	bus *MessageBus,
	opener Opener,
	origins *OriginPolicy,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.FallbackGrace <= 0 {
		cfg.FallbackGrace = 500 * time.Millisecond
	}
	if cfg.PopupWidth <= 0 {
		cfg.PopupWidth = 600
	}
	if cfg.PopupHeight <= 0 {
		cfg.PopupHeight = 700
	}
	return &Coordinator{
		builder:   builder,
		pkce:      pkce,
		kv:        kv,
		exchanger: exchanger,
		bus:       bus,
		opener:    opener,
		origins:   origins,
		cfg:       cfg,
	}
}

// delivery is a single-fire completion shared by the two producers.
type delivery struct {
	once sync.Once
	ch   chan outcome
}

type outcome struct {
	resp    *domain.AuthorizationResponse
	err     error
	channel string
}

func newDelivery() *delivery {
	return &delivery{ch: make(chan outcome, 1)}
}

func (d *delivery) resolve(o outcome) bool {
	fired := false
	d.once.Do(func() {
		d.ch <- o
		fired = true
	})
	return fired
}

// Authenticate runs the handshake and returns the authenticated session.
// Errors are ErrAuthCancelled, ErrAuthTimeout, ErrAuthStateMismatch,
// *domain.ProviderError, ErrMissingVerifier or a token exchange failure.
// Parameters:
//   - ctx: context for cancellation; cancelling it closes the popup.
// Returns:
//   - *domain.AuthSession: session with access token and username.
//   - error: non-nil if the handshake does not complete.
func (c *Coordinator) Authenticate(ctx context.Context) (*domain.AuthSession, error) {
	ctx = logger.SetComponent(ctx, "oauth")

	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	session := &domain.AuthSession{State: state}

	authURL, pkce, err := c.builder.Build(AuthorizeRequest{
		ClientID:    c.cfg.ClientID,
		RedirectURI: c.cfg.RedirectURI,
		Scopes:      c.cfg.Scopes,
		State:       state,
	})
	if err != nil {
		return nil, err
	}
	session.CodeVerifier = pkce.Verifier
	if err := c.pkce.Save(ctx, state, pkce); err != nil {
		return nil, fmt.Errorf("persist PKCE verifier: %w", err)
	}

	// A payload left behind by an abandoned attempt must not be consumed by this one.
	if err := c.kv.Delete(ctx, FallbackKey); err != nil {
		return nil, err
	}

	messages, release := c.bus.Subscribe()
	defer release()

	popup, err := c.opener.Open(ctx, authURL, CenterPopup(c.cfg.Caller, c.cfg.PopupWidth, c.cfg.PopupHeight))
	if err != nil {
		return nil, err
	}
	defer popup.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d := newDelivery()
	go c.listenMessages(runCtx, messages, d)
	go c.watchFallback(runCtx, popup, d)

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	var got outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrAuthTimeout
	case got = <-d.ch:
	}
	cancel()

	if got.err != nil {
		return nil, got.err
	}

	logger.CtxDebug(ctx, "Authorization response received via %s channel", got.channel)

	if got.channel == "message" {
		if err := c.kv.Delete(ctx, FallbackKey); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Failed to clear fallback payload")
		}
	}

	if got.resp.Error != "" {
		return nil, &domain.ProviderError{Code: got.resp.Error, Description: got.resp.ErrorDescription}
	}
	if err := VerifyState(state, got.resp.UnwrapState()); err != nil {
		return nil, err
	}

	token, err := c.exchanger.Exchange(ctx, state, got.resp.Code)
	if err != nil {
		return nil, err
	}
	session.CodeVerifier = ""
	session.AccessToken = token.AccessToken

	username, err := c.exchanger.UserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	session.Username = username

	logger.CtxInfo(ctx, "Authenticated as %s", username)
	return session, nil
}

// listenMessages is the message-channel producer. Messages from origins off
// the allow-list are dropped and only logged.
func (c *Coordinator) listenMessages(ctx context.Context, messages <-chan domain.CallbackMessage, d *delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-messages:
			if !c.origins.Allows(msg.Origin) {
				logger.CtxDebug(ctx, "Dropping authorization message from origin %q", msg.Origin)
				continue
			}
			resp := msg.Response
			d.resolve(outcome{resp: &resp, channel: "message"})
			return
		}
	}
}

// watchFallback is the storage producer: once the popup closes with no
// message, it waits the grace interval and then consumes the fallback key.
func (c *Coordinator) watchFallback(ctx context.Context, popup Popup, d *delivery) {
	select {
	case <-ctx.Done():
		return
	case <-popup.Closed():
	}

	grace := time.NewTimer(c.cfg.FallbackGrace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return
	case <-grace.C:
	}

	raw, err := c.kv.Take(ctx, FallbackKey)
	if errors.Is(err, domain.ErrNotFound) {
		d.resolve(outcome{err: domain.ErrAuthCancelled})
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.resolve(outcome{err: fmt.Errorf("read fallback payload: %w", err)})
		return
	}

	var resp domain.AuthorizationResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		d.resolve(outcome{err: fmt.Errorf("decode fallback payload: %w", err)})
		return
	}
	d.resolve(outcome{resp: &resp, channel: "storage"})
}
