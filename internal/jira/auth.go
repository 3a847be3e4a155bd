package jira

import (
	"encoding/base64"
	"net/http"
)

// BasicAuth implements Authenticator with a username + API token pair.
type BasicAuth struct {
	Username string
	APIToken string
}

func (b *BasicAuth) Apply(req *http.Request) error {
	cred := base64.StdEncoding.EncodeToString([]byte(b.Username + ":" + b.APIToken))
	req.Header.Set("Authorization", "Basic "+cred)
	return nil
}
