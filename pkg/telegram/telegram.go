// pkg/telegram/telegram.go
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	token       string
	botUsername string
	httpClient  *http.Client
}

var GlobalClient *Client

func InitClient(token, botUsername string) {
	GlobalClient = &Client{
		token:       token,
		botUsername: botUsername,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessagePayload struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (c *Client) SendMessage(chatID int64, text string) error {
	if c.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}

	body, err := json.Marshal(sendMessagePayload{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.token)
	resp, err := c.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram sendMessage failed: %s: %s", resp.Status, string(data))
	}
	return nil
}

// ActivationDeepLink builds the t.me link the store page shows after a
// purchase; the bot redeems the embedded token on /start.
func (c *Client) ActivationDeepLink(token string) string {
	return fmt.Sprintf("https://t.me/%s?start=act_%s", c.botUsername, token)
}

func (c *Client) BotUsername() string {
	return c.botUsername
}
