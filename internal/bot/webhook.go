package bot

import (
	"context"
	"net/http"

	apphttp "crmbot/internal/http"
	"crmbot/internal/telegram"
	"crmbot/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// UpdateHandler processes one update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

// WebhookModule receives updates pushed by Telegram. The secret path segment
// is the only credential.
type WebhookModule struct {
	handler UpdateHandler
	secret  string
}

func NewWebhookModule(handler UpdateHandler, secret string) *WebhookModule {
	return &WebhookModule{handler: handler, secret: secret}
}

func (m *WebhookModule) Name() string {
	return "telegram-webhook"
}

func (m *WebhookModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.POST("/telegram/webhook/:secret",
		httpkit.SecretPathParam("secret", m.secret),
		m.receive,
	)
}

// receive acknowledges every decodable update. The turn is detached from the
// request context.
func (m *WebhookModule) receive(c *gin.Context) {
	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid update", nil)
		return
	}
	m.handler.HandleUpdate(context.WithoutCancel(c.Request.Context()), u)
	c.Status(http.StatusOK)
}

var _ apphttp.Module = (*WebhookModule)(nil)
