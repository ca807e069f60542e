package models

// Event names pushed over the real-time channel.
const (
	EventOnlineUsers           = "getOnlineUsers"
	EventFriendRequestReceived = "friend_request_received"
	EventFriendRequestAccepted = "friend_request_accepted"
	EventFriendRequestDeclined = "friend_request_declined"
	EventFriendRemoved         = "friend_removed"
	EventUserBlocked           = "user_blocked"
	EventUserUnblocked         = "user_unblocked"
	EventNewMessage            = "newMessage"
	EventTyping                = "typing"
	EventStopTyping            = "stop_typing"
	EventPong                  = "pong"
)

// Event is the envelope written to a client channel.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// FromPayload is the body of every relationship and typing event.
type FromPayload struct {
	From string `json:"from"`
}

func NewFromEvent(name, from string) Event {
	return Event{Event: name, Data: FromPayload{From: from}}
}
