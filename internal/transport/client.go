package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pager/server/internal/media"
	"github.com/pager/server/internal/model"
	"github.com/pager/server/internal/notify"
	"github.com/pager/server/internal/repo"
)

// numClientMessages is how many trailing messages each chat contributes to
// the login snapshot
const numClientMessages = 100

// Client is a live session: one authenticated connection bound to a user,
// their group and a session token for the lifetime of the connection.
type Client struct {
	server       *Server
	conn         Conn
	user         model.User
	group        model.Group
	sessionToken string
}

func newClient(server *Server, conn Conn, user model.User, group model.Group, sessionToken string) *Client {
	return &Client{
		server:       server,
		conn:         conn,
		user:         user,
		group:        group,
		sessionToken: sessionToken,
	}
}

// SessionToken returns the token bound to this session
func (c *Client) SessionToken() string {
	return c.sessionToken
}

// User returns the authenticated user this session is bound to
func (c *Client) User() model.User {
	return c.user
}

// sessionValid gates every externally invocable operation on the bound token
func (c *Client) sessionValid(token string) bool {
	if token != c.sessionToken {
		log.Printf("[AUTH] Invalid session token for user %q (UID: %s).", c.user.Name, c.user.ID)
		c.emit(EventAuthFailure, "Invalid session token.")
		return false
	}
	return true
}

// emit writes an event to the connection; write errors on a torn-down
// connection are logged, never propagated
func (c *Client) emit(event string, payload any) {
	if err := c.conn.Emit(event, payload); err != nil {
		log.Printf("[SERVER] Failed to emit %s to user %q: %v", event, c.user.Name, err)
	}
}

// imageURL builds the retrieval URL clients use to fetch an attachment
func (c *Client) imageURL(resourceID string) string {
	return fmt.Sprintf("%s/api/v1/media/image/%s/%s", c.server.deps.MediaBaseURL, resourceID, c.sessionToken)
}

// Update runs the post-login synchronization: a snapshot of the trailing
// messages of every accessible chat, newest first, with resolved attachment
// URLs. Chats and attachments that no longer exist are skipped. Stamps the
// user's last login.
func (c *Client) Update(ctx context.Context) error {
	chatData := make(map[string]ChatSnapshot)

	for _, chatID := range c.group.Chats {
		chat, err := c.server.deps.Chats.GetByID(ctx, chatID)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				log.Printf("[CHAT] Failed to load chat %s for login snapshot: %v", chatID, err)
			}
			continue
		}

		msgs, err := c.server.deps.Chats.LastMessages(ctx, chatID, numClientMessages)
		if err != nil {
			log.Printf("[CHAT] Failed to load messages of chat %s for login snapshot: %v", chatID, err)
			continue
		}

		snapshot := ChatSnapshot{Title: chat.Title, Messages: []MessageData{}}
		for _, msg := range msgs {
			data := MessageData{
				ID:        msg.ID,
				Text:      msg.Text,
				CreatedAt: msg.Timestamp,
				User:      MessageUser{ID: msg.SenderID.String(), Name: msg.Nickname},
			}
			if msg.ImageID != nil {
				attachment, err := c.server.deps.Images.GetByID(ctx, *msg.ImageID)
				if err != nil {
					// Stale attachment reference; drop the message
					continue
				}
				data.Image = c.imageURL(attachment.ResourceID)
			}
			snapshot.Messages = append(snapshot.Messages, data)
		}
		chatData[chatID.String()] = snapshot
	}

	now := time.Now()
	if err := c.server.deps.Users.SetLastLogin(ctx, c.user.ID, now); err != nil {
		return fmt.Errorf("failed to stamp last login: %w", err)
	}
	c.user.LastLogin = &now

	c.emit(EventLoginStatusUpdate, LoginStatusUpdate{
		ChatData:     chatData,
		SessionToken: c.sessionToken,
		UserID:       c.user.ID.String(),
		Nickname:     c.user.Name,
		Rank:         c.user.Rank,
		IsAdminGroup: c.group.Name == c.server.deps.AdminGroupName,
	})
	return nil
}

// GetChatlist sends {id, title} for every chat the group can access
func (c *Client) GetChatlist(ctx context.Context, req ChatlistRequest) {
	if !c.sessionValid(req.SessionToken) {
		return
	}

	chats := []ChatlistEntry{}
	for _, chatID := range c.group.Chats {
		chat, err := c.server.deps.Chats.GetByID(ctx, chatID)
		if err != nil {
			if !errors.Is(err, repo.ErrNotFound) {
				log.Printf("[CHAT] Failed to load chat %s for chatlist: %v", chatID, err)
			}
			continue
		}
		chats = append(chats, ChatlistEntry{ID: chat.ID.String(), Title: chat.Title})
	}

	c.emit(EventChatlistData, chats)
}

// CreateMessage validates, authorizes and fans out one message, then
// persists it. The attachment parameter is only ever non-nil on internal
// calls from the image paths, which have already been authenticated; only
// then is the session-token gate skipped.
func (c *Client) CreateMessage(ctx context.Context, req MessageCreateRequest, attachment *model.Image) {
	if attachment == nil && !c.sessionValid(req.SessionToken) {
		return
	}

	chatID, err := uuid.Parse(req.Contents.Chat)
	if err != nil || !c.group.HasChat(chatID) {
		log.Printf("[AUTH] User %q (UID: %s) attempted to send a message to chat %s without authorization.", c.user.Name, c.user.ID, req.Contents.Chat)
		c.emit(EventMessageSendFailure, "You do not have access to this chat!")
		return
	}

	chat, err := c.server.deps.Chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Printf("[CHAT] User %q (UID: %s) attempted to send a message to chat %s, which does not exist.", c.user.Name, c.user.ID, chatID)
			c.emit(EventMessageSendFailure, "Chat does not exist!")
			return
		}
		log.Printf("[CHAT] Failed to load chat %s: %v", chatID, err)
		c.emit(EventMessageSendFailure, "The message could not be sent!")
		return
	}

	if req.Contents.Text == "" && attachment == nil {
		log.Printf("[CHAT] User %q (UID: %s) attempted to send a message to chat %s with no text.", c.user.Name, c.user.ID, chatID)
		c.emit(EventMessageSendFailure, "The message data does not exist!")
		return
	}

	messageID := uuid.NewString()
	log.Printf("[CHAT] User %q (UID: %s) sent a message to chat %s (Image: %t, ID: %s).", c.user.Name, c.user.ID, chatID, attachment != nil, messageID)

	// Recipients are recomputed per send so grants and membership changes
	// take effect immediately
	recipients, err := c.server.deps.Users.ListWithChatAccess(ctx, chatID)
	if err != nil {
		log.Printf("[CHAT] Failed to resolve recipients of chat %s: %v", chatID, err)
		c.emit(EventMessageSendFailure, "The message could not be sent!")
		return
	}

	// One timestamp for every recipient and the persisted record
	timestamp := time.Now()

	data := MessageData{
		ID:        messageID,
		Text:      req.Contents.Text,
		CreatedAt: timestamp,
		User:      MessageUser{ID: c.user.ID.String(), Name: c.user.Name},
		Chat:      chat.ID.String(),
	}
	if attachment != nil {
		data.Image = c.imageURL(attachment.ResourceID)
	}

	for _, recipient := range recipients {
		live := c.server.Client(recipient.ID)
		if live == nil {
			c.notifyOffline(ctx, chat, recipient)
			continue
		}
		live.emit(EventMessageData, data)
	}

	msg := model.Message{
		ID:        messageID,
		ChatID:    chat.ID,
		Text:      req.Contents.Text,
		Timestamp: timestamp,
		SenderID:  c.user.ID,
		Nickname:  c.user.Name,
	}
	if attachment != nil {
		imageID := attachment.ID
		msg.ImageID = &imageID
	}
	if err := c.server.deps.Chats.AppendMessage(ctx, msg); err != nil {
		log.Printf("[CHAT] Failed to persist message %s in chat %s: %v", messageID, chatID, err)
	}
}

// notifyOffline pushes a new-message notification unless the recipient was
// notified for this chat inside the cooldown window
func (c *Client) notifyOffline(ctx context.Context, chat model.Chat, recipient model.User) {
	if !c.server.deps.Throttle.Allow(chat.ID, recipient.ID) {
		log.Printf("[CHAT] Did not send a notification to user %q (UID: %s) about a message in chat %q due to delay less than %s.",
			recipient.Name, recipient.ID, chat.ID, notify.MinTimeBetweenNotifications)
		return
	}

	log.Printf("[CHAT] Sent a notification to user %q (UID: %s) about a message in chat %q.", recipient.Name, recipient.ID, chat.ID)
	if err := notify.NewMessageNotification(ctx, c.server.deps.Pusher, recipient.ExpoPushToken, chat.Title); err != nil {
		log.Printf("[CHAT] Failed to push notification to user %q: %v", recipient.Name, err)
	}
}

// CreateImageMessage deduplicates the uploaded image by content hash,
// storing it (descaled) only when unseen, then routes into CreateMessage
// with the attachment bound.
func (c *Client) CreateImageMessage(ctx context.Context, req ImageMessageCreateRequest) {
	if !c.sessionValid(req.SessionToken) {
		return
	}

	imageData, err := base64.StdEncoding.DecodeString(req.Contents.Image)
	if err != nil {
		log.Printf("[MEDIA] User %q (UID: %s) sent undecodable image data: %v", c.user.Name, c.user.ID, err)
		c.emit(EventMessageSendFailure, "The message data is invalid!")
		return
	}

	// The extension becomes part of an on-disk file name; anything beyond a
	// plain alphanumeric suffix could address files outside the media store
	if !media.ValidExtension(req.Contents.Extension) {
		log.Printf("[MEDIA] User %q (UID: %s) sent an invalid image extension %q.", c.user.Name, c.user.ID, req.Contents.Extension)
		c.emit(EventMessageSendFailure, "The message data is invalid!")
		return
	}

	textReq := MessageCreateRequest{}
	textReq.Contents.Chat = req.Contents.ChatID
	textReq.Contents.Text = ""

	// A byte-identical upload reuses the stored image outright
	idHash := media.ContentHash(imageData)
	existing, err := c.server.deps.Images.GetByContentHash(ctx, idHash)
	if err == nil {
		c.CreateMessage(ctx, textReq, &existing)
		return
	}
	if !errors.Is(err, repo.ErrNotFound) {
		log.Printf("[MEDIA] Failed to check for duplicate image: %v", err)
		return
	}

	resourceID := uuid.NewString()

	descaled, err := media.Descale(imageData)
	if err != nil {
		log.Printf("[MEDIA] Failed to descale image from user %q (UID: %s): %v", c.user.Name, c.user.ID, err)
		return
	}
	if err := c.server.deps.Media.Write(resourceID, req.Contents.Extension, descaled); err != nil {
		log.Printf("[MEDIA] Error writing file at path %q: %v", c.server.deps.Media.Path(resourceID, req.Contents.Extension), err)
		return
	}

	record, err := c.server.deps.Images.Create(ctx, c.user.ID, resourceID, req.Contents.Extension, idHash)
	if err != nil {
		// Roll the file back rather than leave an unreferenced upload
		_ = c.server.deps.Media.Remove(resourceID, req.Contents.Extension)
		log.Printf("[MEDIA] Failed to create image record: %v", err)
		return
	}

	c.CreateMessage(ctx, textReq, &record)
}

// GetChatUsersStatus reports nickname and last seen times of every member
// with access to the chat
func (c *Client) GetChatUsersStatus(ctx context.Context, req ChatStatusRequest) {
	times, ok := c.chatUserTimes(ctx, req, EventChatUsersStatusFailure, "users status")
	if !ok {
		return
	}
	c.emit(EventChatUsersStatusData, times)
}

// GetChatOnlineStatus is the envelope-wrapped variant of GetChatUsersStatus;
// it additionally echoes the queried chat id
func (c *Client) GetChatOnlineStatus(ctx context.Context, req ChatStatusRequest) {
	times, ok := c.chatUserTimes(ctx, req, EventChatOnlineStatusFailure, "users online status")
	if !ok {
		return
	}
	c.emit(EventChatOnlineStatusData, ChatOnlineStatusData{
		Chat:      req.Contents.Chat,
		UserTimes: times,
	})
}

// chatUserTimes gates, authorizes and resolves the member-status list shared
// by both status queries
func (c *Client) chatUserTimes(ctx context.Context, req ChatStatusRequest, failureEvent, what string) ([]UserTime, bool) {
	if !c.sessionValid(req.SessionToken) {
		return nil, false
	}

	chatID, err := uuid.Parse(req.Contents.Chat)
	if err != nil || !c.group.HasChat(chatID) {
		log.Printf("[AUTH] User %q (UID: %s) attempted to access the %s of chat %s without authorization.", c.user.Name, c.user.ID, what, req.Contents.Chat)
		c.emit(failureEvent, "You do not have access to this chat!")
		return nil, false
	}

	members, err := c.server.deps.Users.ListWithChatAccess(ctx, chatID)
	if err != nil {
		log.Printf("[CHAT] Failed to resolve members of chat %s: %v", chatID, err)
		c.emit(failureEvent, "The request could not be served!")
		return nil, false
	}

	times := []UserTime{}
	for _, member := range members {
		times = append(times, UserTime{
			Name:       member.Name,
			LastLogin:  member.LastLogin,
			LastLogout: member.LastLogout,
		})
	}
	return times, true
}
