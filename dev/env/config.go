package devenv

// LiveConfig is read from <dev_state>/lms.json5, it points the live tests at
// a real portal account.
type LiveConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// OtherUser is the id of another account whose profile is visible to
	// this one, zero skips the lookup.
	OtherUser int64 `json:"other_user"`
}
