package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"reelpost/internal/logging"
	"reelpost/internal/metrics"
)

const defaultAPIBase = "https://api.telegram.org"

// InlineKeyboardButton is one button in an inline keyboard row.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is the reply_markup payload for inline keyboards.
type InlineKeyboard struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// Message is the subset of the Bot API message object the service reads.
type Message struct {
	MessageID int64 `json:"message_id"`
	From      *User `json:"from"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
	Date int64  `json:"date"`
}

// User is a Telegram user.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Update is one long-poll update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Client talks to the Bot API for a single bot token.
type Client struct {
	http    *http.Client
	apiBase string
	token   string
	chatID  string
}

// Options configures a Client. APIBase and HTTPClient are test overrides.
type Options struct {
	Token      string
	ChatID     string
	APIBase    string
	HTTPClient *http.Client
}

// New creates a Bot API client.
func New(opts Options) *Client {
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Long polls hold the connection for up to 30s
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &Client{
		http:    httpClient,
		apiBase: apiBase,
		token:   opts.Token,
		chatID:  opts.ChatID,
	}
}

// ChatID returns the configured notification chat.
func (c *Client) ChatID() string {
	return c.chatID
}

func (c *Client) methodURL(method string) string {
	return c.apiBase + "/bot" + c.token + "/" + method
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, form url.Values, out interface{}) error {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.TelegramRequestsTotal.WithLabelValues(method, status).Inc()
		logging.Debug("Telegram %s took %v", method, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method),
		bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		status = "error"
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		status = "error"
		return fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	return c.decode(resp, method, &status, out)
}

func (c *Client) decode(resp *http.Response, method string, status *string, out interface{}) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		*status = "error"
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		*status = "error"
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !envelope.OK {
		*status = "error"
		return fmt.Errorf("telegram %s rejected: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			*status = "error"
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// SendMessage sends an HTML-formatted message to the configured chat.
func (c *Client) SendMessage(ctx context.Context, text string) (*Message, error) {
	return c.SendMessageWithKeyboard(ctx, text, nil)
}

// SendMessageWithKeyboard sends an HTML message with an optional inline
// keyboard.
func (c *Client) SendMessageWithKeyboard(ctx context.Context, text string, keyboard *InlineKeyboard) (*Message, error) {
	form := url.Values{
		"chat_id":    {c.chatID},
		"text":       {text},
		"parse_mode": {"HTML"},
	}
	if keyboard != nil {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			return nil, err
		}
		form.Set("reply_markup", string(markup))
	}

	var message Message
	if err := c.call(ctx, "sendMessage", form, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// SendVideo uploads a video file to the configured chat with an HTML
// caption and optional inline keyboard.
func (c *Client) SendVideo(ctx context.Context, path, caption string, keyboard *InlineKeyboard) (*Message, error) {
	method := "sendVideo"
	start := time.Now()
	status := "success"
	defer func() {
		metrics.TelegramRequestsTotal.WithLabelValues(method, status).Inc()
		logging.Debug("Telegram %s took %v", method, time.Since(start))
	}()

	file, err := os.Open(path)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"chat_id":    c.chatID,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			status = "error"
			return nil, err
		}
		fields["reply_markup"] = string(markup)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			status = "error"
			return nil, err
		}
	}

	part, err := writer.CreateFormFile("video", filepath.Base(path))
	if err != nil {
		status = "error"
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to buffer video: %w", err)
	}
	if err := writer.Close(); err != nil {
		status = "error"
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), &body)
	if err != nil {
		status = "error"
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("telegram %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	var message Message
	if err := c.decode(resp, method, &status, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// AnswerCallbackQuery acknowledges a button press, optionally showing a
// toast to the user.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	form := url.Values{"callback_query_id": {queryID}}
	if text != "" {
		form.Set("text", text)
	}
	return c.call(ctx, "answerCallbackQuery", form, nil)
}

// EditMessageReplyMarkup replaces (or clears, with nil) a message's
// inline keyboard so stale buttons cannot be pressed twice.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID int64, messageID int64, keyboard *InlineKeyboard) error {
	form := url.Values{
		"chat_id":    {strconv.FormatInt(chatID, 10)},
		"message_id": {strconv.FormatInt(messageID, 10)},
	}
	if keyboard != nil {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			return err
		}
		form.Set("reply_markup", string(markup))
	}
	return c.call(ctx, "editMessageReplyMarkup", form, nil)
}

// GetUpdates long-polls for updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{
		"timeout":         {strconv.Itoa(int(timeout.Seconds()))},
		"allowed_updates": {`["message","callback_query"]`},
	}
	if offset > 0 {
		form.Set("offset", strconv.FormatInt(offset, 10))
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", form, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
