package models

import "time"

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PeerSummary is one sidebar row: a friend plus conversation state.
type PeerSummary struct {
	UserSummary
	UnreadCount int64    `json:"unreadCount"`
	LastMessage *Message `json:"lastMessage"`
}
