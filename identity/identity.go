package identity

// User is the identity provider's view of a registered user
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is the token bundle issued by the identity provider on signin.
// The access token is an HS256 JWT signed with the project's JWT secret,
// which is what auth.Auth verifies on authenticated routes.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}
