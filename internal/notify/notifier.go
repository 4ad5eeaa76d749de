package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultExpoPushURL is the Expo push delivery endpoint
const DefaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

// Pusher dispatches push notifications to a device token
type Pusher interface {
	Push(ctx context.Context, token, title, body string) error
}

// pushRequest is the Expo push API request body
type pushRequest struct {
	To    string         `json:"to"`
	Sound string         `json:"sound"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// ExpoPusher sends push notifications through the Expo push API
type ExpoPusher struct {
	client *resty.Client
}

// NewExpoPusher creates a Pusher that talks to the given Expo endpoint
func NewExpoPusher(pushURL string) *ExpoPusher {
	client := resty.New().
		SetBaseURL(pushURL).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")
	return &ExpoPusher{client: client}
}

// Push sends one notification. An empty token is silently ignored, matching
// users who never registered a device.
func (p *ExpoPusher) Push(ctx context.Context, token, title, body string) error {
	if token == "" {
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(pushRequest{
			To:    token,
			Sound: "default",
			Title: title,
			Body:  body,
			Data:  map[string]any{},
		}).
		Post("")
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push endpoint returned %s", resp.Status())
	}
	return nil
}

// NewMessageNotification sends the standard "new message" push for a chat
func NewMessageNotification(ctx context.Context, p Pusher, token, chatTitle string) error {
	return p.Push(ctx, token, "New message", fmt.Sprintf("New message in %s", chatTitle))
}

// UrgentNotification sends the page push used by the pager endpoint
func UrgentNotification(ctx context.Context, p Pusher, token, message string) error {
	return p.Push(ctx, token, "Urgent Message", message)
}
