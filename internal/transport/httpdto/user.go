package httpdto

import (
	"agora-chat/internal/domain/user"
)

type UserDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func FromProfile(p user.Profile) UserDTO {
	return UserDTO{
		ID:          p.ID.String(),
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL.String,
	}
}
