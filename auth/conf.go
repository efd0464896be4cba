package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds the OAuth2 client credentials used to obtain broker tokens.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

// Validate checks that every credential is set.
func (c Conf) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.AuthURL == "" {
		return fmt.Errorf("auth: client_id, client_secret and auth_url are required")
	}
	return nil
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
