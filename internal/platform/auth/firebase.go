package auth

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/scentora/storefront/internal/platform/config"
)

// FirebaseClient verifies ID tokens and loads user records through the Admin SDK.
type FirebaseClient struct {
	client       *firebaseauth.Client
	checkRevoked bool
}

// NewFirebaseClient initialises the Admin SDK for cfg.ProjectID. When checkRevoked is set,
// tokens of disabled or signed-out users are rejected at the cost of an extra lookup.
func NewFirebaseClient(ctx context.Context, cfg config.FirebaseConfig, checkRevoked bool) (*FirebaseClient, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: init firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: init firebase auth: %w", err)
	}
	return &FirebaseClient{client: client, checkRevoked: checkRevoked}, nil
}

func (c *FirebaseClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	var (
		token *firebaseauth.Token
		err   error
	)
	if c.checkRevoked {
		token, err = c.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = c.client.VerifyIDToken(ctx, idToken)
	}
	switch {
	case err == nil:
		return token, nil
	case firebaseauth.IsIDTokenExpired(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err), firebaseauth.IsIDTokenInvalid(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	default:
		return nil, err
	}
}

func (c *FirebaseClient) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	return c.client.GetUser(ctx, uid)
}
