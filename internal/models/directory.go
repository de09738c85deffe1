package models

// ProviderProfile is the directory record a booking references. A single
// user account may own several provider identities (e.g. one per practice).
type ProviderProfile struct {
	ID       string  `json:"id"`
	UserID   string  `json:"user_id"`
	FullName string  `json:"full_name"`
	Title    *string `json:"title,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

type UserProfile struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
