package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"
)

// Options contains the configuration for the identity provider Client
type Options struct {
	BaseURL    string // Project URL, e.g. https://xyz.supabase.co
	AnonKey    string // Public key used for signup/signin/getUser
	ServiceKey string // Admin key used for deleteUser
	Logger     *zap.Logger
}

// Client wraps the provider's Go SDK behind the operations the
// subscription lifecycle needs. The SDK issues requests without a
// context; the signatures keep one so the collaborators stay uniform.
type Client struct {
	Options
	api   gotrue.Client
	admin gotrue.Client
}

// NewClient will return a new identity provider Client
func NewClient(option Options) (*Client, error) {
	if option.BaseURL == "" {
		return nil, fmt.Errorf("empty BaseURL is invalid")
	}
	if option.AnonKey == "" {
		return nil, fmt.Errorf("empty AnonKey is invalid")
	}
	if option.ServiceKey == "" {
		return nil, fmt.Errorf("empty ServiceKey is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	// The project reference only feeds the SDK's default URL, which is
	// replaced with the configured one right after
	authURL := option.BaseURL + "/auth/v1"
	return &Client{
		Options: option,
		api:     gotrue.New("portal", option.AnonKey).WithCustomGoTrueURL(authURL),
		admin: gotrue.New("portal", option.ServiceKey).
			WithCustomGoTrueURL(authURL).
			WithToken(option.ServiceKey),
	}, nil
}

func providerUser(u types.User) *User {
	return &User{
		ID:    u.ID.String(),
		Email: u.Email,
		Role:  u.Role,
	}
}

// SignUp registers a new identity with email and password
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	res, err := c.api.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Identity provider rejected signup")
	}

	// With email confirmation off the provider answers with a session and
	// nests the user inside it
	user := res.User
	if user.ID == uuid.Nil {
		user = res.Session.User
	}
	return providerUser(user), nil
}

// SignInWithPassword authenticates with the password grant and returns
// the user along with a session token bundle
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*User, *Session, error) {
	res, err := c.api.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, nil, extErrors.Wrap(err, "Identity provider rejected credentials")
	}

	user := providerUser(res.User)
	return user, &Session{
		AccessToken:  res.AccessToken,
		TokenType:    res.TokenType,
		ExpiresIn:    int64(res.ExpiresIn),
		RefreshToken: res.RefreshToken,
		User:         user,
	}, nil
}

// GetUser resolves a session access token back to its user
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	res, err := c.api.WithToken(accessToken).GetUser()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot resolve access token")
	}
	return providerUser(res.User), nil
}

// DeleteUser removes an identity via the admin API. Used as the
// compensating action when profile creation fails after registration.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return extErrors.Wrap(err, "Cannot parse user id")
	}

	c.Logger.Debug("Deleting identity",
		zap.String("UserID", userID),
	)

	if err := c.admin.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: uid}); err != nil {
		return extErrors.Wrap(err, "Cannot delete identity")
	}
	return nil
}
