package restapi

import (
	"net/http"
)

// Auth decorates an outgoing request with credentials
type Auth interface {
	Apply(req *http.Request)
}

// BasicAuth sends HTTP Basic credentials. Azure DevOps uses an empty username with the
// personal access token as password; Atlassian Cloud uses email and API token.
type BasicAuth struct {
	Username string
	Password string `masq:"secret"`
}

func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// BearerToken sends "Authorization: Bearer <token>"
type BearerToken struct {
	Token string `masq:"secret"`
}

func (a BearerToken) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}
