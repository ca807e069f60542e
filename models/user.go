package models

import "time"

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Password    string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserSummary is the public projection of a user returned by list endpoints.
type UserSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DirectoryEntry is a summary plus the user's own block list, used by the
// all-users listing so clients can render block state.
type DirectoryEntry struct {
	UserSummary
	BlockedUsers []string `json:"blockedUsers"`
}

func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
	}
}
