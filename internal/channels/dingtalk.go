package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coopco/chatbridge/internal/auth"
	"github.com/coopco/chatbridge/internal/bus"
)

func init() {
	Register("dingtalk", newDingTalkChannel)
}

const dingtalkAPIBase = "https://api.dingtalk.com"

type dingtalkConfig struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	WebhookPort  int      `json:"webhookPort"`
	AllowedUsers []string `json:"allowedUsers"`
}

// DingTalkChannel bridges DingTalk via HTTP webhooks inbound and the
// REST API outbound. Outbound calls go through a token manager that
// renews the bearer credential before expiry.
type DingTalkChannel struct {
	clientID     string
	apiBase      string
	tokens       *auth.TokenManager
	bus          *bus.MessageBus
	allowedUsers map[string]bool
	server       *http.Server
	httpClient   *http.Client
}

func newDingTalkChannel(cfg json.RawMessage, msgBus *bus.MessageBus) (Channel, error) {
	var dcfg dingtalkConfig
	if err := json.Unmarshal(cfg, &dcfg); err != nil {
		return nil, fmt.Errorf("failed to parse dingtalk config: %w", err)
	}
	if dcfg.WebhookPort == 0 {
		dcfg.WebhookPort = 9002
	}
	allowed := make(map[string]bool, len(dcfg.AllowedUsers))
	for _, u := range dcfg.AllowedUsers {
		allowed[u] = true
	}
	tokens := auth.NewTokenManager(dingtalkAPIBase+"/v1.0/oauth2/token", auth.Credentials{
		AccessToken:  dcfg.AccessToken,
		RefreshToken: dcfg.RefreshToken,
		ClientID:     dcfg.ClientID,
		ClientSecret: dcfg.ClientSecret,
	})
	return &DingTalkChannel{
		clientID:     dcfg.ClientID,
		apiBase:      dingtalkAPIBase,
		tokens:       tokens,
		bus:          msgBus,
		allowedUsers: allowed,
		server:       &http.Server{Addr: fmt.Sprintf(":%d", dcfg.WebhookPort)},
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *DingTalkChannel) Name() string { return "dingtalk" }

func (c *DingTalkChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleEvent)
	c.server.Handler = mux

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("dingtalk: server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return nil
}

func (c *DingTalkChannel) handleEvent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var event struct {
		MsgID string `json:"msgId"`
		Text  struct {
			Content string `json:"content"`
		} `json:"text"`
		SenderID       string `json:"senderId"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		http.Error(w, "parse error", http.StatusBadRequest)
		return
	}

	if !c.IsAllowed(event.SenderID) {
		slog.Warn("dingtalk: message from disallowed user", "user", event.SenderID)
		w.WriteHeader(http.StatusOK)
		return
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   "dingtalk",
		SenderID:  event.SenderID,
		ChatID:    event.ConversationID,
		MessageID: event.MsgID,
		Content:   event.Text.Content,
	})
	w.WriteHeader(http.StatusOK)
}

func (c *DingTalkChannel) Stop() error {
	return c.server.Shutdown(context.Background())
}

// doAPI performs one authenticated API call, fetching a valid token first.
func (c *DingTalkChannel) doAPI(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("dingtalk: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dingtalk: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-acs-dingtalk-access-token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dingtalk: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dingtalk: %s %s status %d: %s", method, path, resp.StatusCode, data)
	}
	return data, nil
}

func (c *DingTalkChannel) Send(ctx context.Context, chatID, text string) (string, error) {
	msgParam, _ := json.Marshal(map[string]string{"content": text})
	data, err := c.doAPI(ctx, http.MethodPost, "/v1.0/robot/groupMessages/send", map[string]any{
		"robotCode":          c.clientID,
		"openConversationId": chatID,
		"msgKey":             "sampleText",
		"msgParam":           string(msgParam),
	})
	if err != nil {
		return "", err
	}
	var result struct {
		ProcessQueryKey string `json:"processQueryKey"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("dingtalk: decode send response: %w", err)
	}
	return result.ProcessQueryKey, nil
}

func (c *DingTalkChannel) Edit(ctx context.Context, chatID, messageID, text string) error {
	cardData, _ := json.Marshal(map[string]string{"content": text})
	_, err := c.doAPI(ctx, http.MethodPut, "/v1.0/im/robots/interactiveCards", map[string]any{
		"openConversationId": chatID,
		"cardBizId":          messageID,
		"cardData":           string(cardData),
	})
	return err
}

func (c *DingTalkChannel) IsAllowed(senderID string) bool {
	if len(c.allowedUsers) == 0 {
		return true
	}
	return c.allowedUsers[senderID]
}
