package transport

import (
	"encoding/json"
	"time"
)

// Event names on the real-time surface. In and out directions share the one
// namespace the clients already speak.
const (
	EventStatusOnline      = "status:online"
	EventLoginStatusUpdate = "loginstatusupdate"
	EventAuthFailureOnline = "authfailure:statusonline"
	EventAuthFailure       = "authfailure"

	EventChatlistGet  = "chatlist:get"
	EventChatlistData = "chatlist:data"

	EventMessageCreate      = "message:create"
	EventMessageData        = "message:data"
	EventMessageSendFailure = "message:send:failure"

	EventImageMessageCreate = "image_message:create"

	EventChatUsersStatusGet     = "chat_users_status:get"
	EventChatUsersStatusData    = "chat_users_status:data"
	EventChatUsersStatusFailure = "chat_users_status:get:failure"

	EventChatOnlineStatusGet     = "chat_online_status:get"
	EventChatOnlineStatusData    = "chat_online_status:data"
	EventChatOnlineStatusFailure = "chat_online_status:get:failure"
)

// Envelope frames every message on the wire
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ChatlistRequest asks for the chats the session's group can access
type ChatlistRequest struct {
	SessionToken string `json:"sessionToken"`
}

// MessageCreateRequest submits a text message to a chat
type MessageCreateRequest struct {
	SessionToken string `json:"sessionToken"`
	Contents     struct {
		Chat string `json:"chat"`
		Text string `json:"text"`
	} `json:"contents"`
}

// ImageMessageCreateRequest submits a base64 image message to a chat
type ImageMessageCreateRequest struct {
	SessionToken string `json:"sessionToken"`
	Contents     struct {
		ChatID    string `json:"chatId"`
		Image     string `json:"image"`
		Extension string `json:"extension"`
	} `json:"contents"`
}

// ChatStatusRequest asks for member status of a chat
type ChatStatusRequest struct {
	SessionToken string `json:"sessionToken"`
	Contents     struct {
		Chat string `json:"chat"`
	} `json:"contents"`
}

// MessageUser identifies a message sender in the client display shape
type MessageUser struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// MessageData is the client display shape of a message. Chat is set on live
// deliveries and absent in login snapshots; Image carries a retrieval URL
// when the message has an attachment.
type MessageData struct {
	ID        string      `json:"_id"`
	Text      string      `json:"text"`
	Image     string      `json:"image,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	User      MessageUser `json:"user"`
	Chat      string      `json:"chat,omitempty"`
}

// ChatSnapshot is one chat's slice of the login snapshot
type ChatSnapshot struct {
	Title    string        `json:"title"`
	Messages []MessageData `json:"messages"`
}

// LoginStatusUpdate is the post-login synchronization sent once per admission
type LoginStatusUpdate struct {
	ChatData     map[string]ChatSnapshot `json:"chatData"`
	SessionToken string                  `json:"sessionToken"`
	UserID       string                  `json:"userId"`
	Nickname     string                  `json:"nickname"`
	Rank         string                  `json:"rank"`
	IsAdminGroup bool                    `json:"isAdminGroup"`
}

// ChatlistEntry is one row of the chatlist response
type ChatlistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// UserTime reports one member's last seen times
type UserTime struct {
	Name       string     `json:"name"`
	LastLogin  *time.Time `json:"lastLogin"`
	LastLogout *time.Time `json:"lastLogout"`
}

// ChatOnlineStatusData wraps the member times with the queried chat id.
// The echoed chat id is part of the client contract and stays.
type ChatOnlineStatusData struct {
	Chat      string     `json:"chat"`
	UserTimes []UserTime `json:"userTimes"`
}
