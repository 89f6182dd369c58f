package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/hubexport/internal/domain"
	"github.com/timmy/hubexport/internal/logger"
	"github.com/timmy/hubexport/internal/oauth"
)

// PayloadStore is where the redirect target leaves the authorization
// response for the storage fallback channel.
type PayloadStore interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// MessagePublisher delivers cross-window messages to the waiting handshake.
type MessagePublisher interface {
	Publish(msg domain.CallbackMessage) int
}

// CloseNotifier is told when the authorization window goes away.
type CloseNotifier interface {
	NotifyClosed()
}

// CallbackHandler serves the OAuth redirect target and the two endpoints
// its page talks back to.
type CallbackHandler struct {
	store  PayloadStore
	bus    MessagePublisher
	closer CloseNotifier
	ttl    time.Duration
}

// NewCallbackHandler creates a new callback handler. The fallback payload
// expires after ttl.
// Parameters:
//   - store: key/value store the fallback payload is written to.
//   - bus: message channel the posted response is published on.
//   - closer: notified when the popup page unloads.
//   - ttl: lifetime of the fallback payload; zero means 10 minutes.
// Returns:
//   - *CallbackHandler: handler for the /oauth routes.
func NewCallbackHandler(store PayloadStore, bus MessagePublisher, closer CloseNotifier, ttl time.Duration) *CallbackHandler {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CallbackHandler{store: store, bus: bus, closer: closer, ttl: ttl}
}

// Callback handles GET /oauth/callback. It persists the response under the
// fallback key and serves a page that posts the same response back as a
// message, then reports its own closing.
func (h *CallbackHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()

	code := c.Query("code")
	providerErr := c.Query("error")
	if code == "" && providerErr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or error parameter"})
		return
	}

	state, _ := json.Marshal(c.Query("state"))
	payload, err := json.Marshal(domain.AuthorizationResponse{
		Code:             code,
		State:            state,
		Error:            providerErr,
		ErrorDescription: c.Query("error_description"),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode payload"})
		return
	}

	if err := h.store.Put(ctx, oauth.FallbackKey, string(payload), h.ttl); err != nil {
		// The message channel can still deliver, so the page is served anyway.
		logger.CtxError(ctx, "Failed to persist callback payload: %v", err)
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(callbackPage))
}

// Message handles POST /oauth/message, the message channel. The sender's
// origin comes from the Origin header; filtering happens in the handshake.
func (h *CallbackHandler) Message(c *gin.Context) {
	var resp domain.AuthorizationResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body: " + err.Error()})
		return
	}

	delivered := h.bus.Publish(domain.CallbackMessage{
		Origin:   c.GetHeader("Origin"),
		Response: resp,
	})
	logger.CtxDebug(c.Request.Context(), "Authorization message delivered to %d listener(s)", delivered)

	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// Closed handles POST /oauth/closed, beaconed when the page unloads.
func (h *CallbackHandler) Closed(c *gin.Context) {
	h.closer.NotifyClosed()
	c.Status(http.StatusNoContent)
}

const callbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Authorization complete</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; padding: 3rem; color: #333; }
        .error { color: #721c24; }
    </style>
</head>
<body>
    <h1 id="title">Authorization complete</h1>
    <p id="detail">You can close this window and return to the terminal.</p>
    <script>
        const params = new URLSearchParams(window.location.search);
        const payload = {
            code: params.get("code") || "",
            state: params.get("state") || "",
            error: params.get("error") || "",
            error_description: params.get("error_description") || ""
        };
        if (payload.error) {
            document.getElementById("title").textContent = "Authorization failed";
            document.getElementById("detail").textContent = payload.error_description || payload.error;
            document.getElementById("detail").className = "error";
        }
        window.addEventListener("pagehide", function () {
            navigator.sendBeacon("/oauth/closed");
        });
        fetch("/oauth/message", {
            method: "POST",
            headers: { "Content-Type": "application/json" },
            body: JSON.stringify(payload)
        }).finally(function () {
            setTimeout(function () { window.close(); }, 300);
        });
    </script>
</body>
</html>`
