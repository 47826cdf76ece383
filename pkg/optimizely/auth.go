package optimizely

import (
	"context"
	"net/url"
	"time"

	"github.com/mitchellh/mapstructure"

	errs "github.com/matzehuels/optisource/pkg/errors"
)

// Credentials are exchanged for a bearer token.
type Credentials struct {
	Username  string
	Password  string
	GrantType string // default: "password"
	ClientID  string // default: "Default"
}

// Token is an issued access token.
type Token struct {
	AccessToken  string    `mapstructure:"access_token"`
	TokenType    string    `mapstructure:"token_type"`
	ExpiresIn    int       `mapstructure:"expires_in"` // seconds, 0 when unknown
	RefreshToken string    `mapstructure:"refresh_token"`
	IssuedAt     time.Time `mapstructure:"-"`
}

// Expired reports whether the token is no longer valid at now. Tokens
// without a lifetime never expire.
func (t *Token) Expired(now time.Time) bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	return !now.Before(t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

// Header returns the Authorization header value for the token.
func (t *Token) Header() string {
	return "Bearer " + t.AccessToken
}

// Authenticator obtains tokens from the site's token endpoint.
type Authenticator struct {
	client *Client
	creds  Credentials
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator that posts through client.
func NewAuthenticator(client *Client, creds Credentials) *Authenticator {
	if creds.GrantType == "" {
		creds.GrantType = DefaultGrantType
	}
	if creds.ClientID == "" {
		creds.ClientID = DefaultClientID
	}
	return &Authenticator{client: client, creds: creds, now: time.Now}
}

// Authenticate performs the password grant. Any failure, including a
// response without an access_token, is reported as AUTHENTICATION_FAILED.
func (a *Authenticator) Authenticate(ctx context.Context) (*Token, error) {
	form := url.Values{
		"username":   {a.creds.Username},
		"password":   {a.creds.Password},
		"grant_type": {a.creds.GrantType},
		"client_id":  {a.creds.ClientID},
	}

	resp, err := a.client.Post(ctx, AuthEndpoint, []byte(form.Encode()), map[string]string{
		"Accept":       AcceptJSON,
		"Content-Type": FormContentType,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeAuthenticationFailed, err, "request token")
	}

	fields, ok := resp.Data.(map[string]any)
	if !ok {
		return nil, errs.New(errs.ErrCodeAuthenticationFailed, "token response is not an object")
	}

	var token Token
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &token,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "create decoder")
	}
	if err := dec.Decode(fields); err != nil {
		return nil, errs.Wrap(errs.ErrCodeAuthenticationFailed, err, "decode token response")
	}
	if token.AccessToken == "" {
		return nil, errs.New(errs.ErrCodeAuthenticationFailed, "token response has no access_token")
	}

	token.IssuedAt = a.now()
	return &token, nil
}
