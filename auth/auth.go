// Package auth obtains OAuth2 client credential tokens. The MQTT client
// presents them as the broker password.
package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type ClientCred struct {
	conf clientcredentials.Config

	mu  sync.Mutex
	src oauth2.TokenSource
}

func NewClientCred(conf Conf) *ClientCred {
	c := &ClientCred{conf: conf.toOauth2Config()}
	c.src = c.conf.TokenSource(context.Background())
	return c
}

// GetToken returns the cached access token while it is valid and requests a
// new one otherwise.
func (c *ClientCred) GetToken() (string, error) {
	c.mu.Lock()
	src := c.src
	c.mu.Unlock()
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return tok.AccessToken, nil
}

// ForceRefresh drops the cached token, e.g. after the broker rejected it,
// and requests a new one.
func (c *ClientCred) ForceRefresh() (string, error) {
	c.mu.Lock()
	c.src = c.conf.TokenSource(context.Background())
	c.mu.Unlock()
	return c.GetToken()
}
