package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEnv is returned for an environment name with no endpoints.
var ErrUnknownEnv = errors.New("identity: unknown environment")

// Endpoints are the base URLs of one identity environment.
type Endpoints struct {
	AuthURL string // auth server, including the /v1 prefix
	MailURL string // restmail-style mail service
}

const restmailURL = "https://restmail.net"

var environments = map[string]Endpoints{
	"stage": {AuthURL: "https://api-accounts.stage.mozaws.net/v1", MailURL: restmailURL},
	"prod":  {AuthURL: "https://api.accounts.firefox.com/v1", MailURL: restmailURL},
	"dev":   {AuthURL: "https://api-accounts.dev.lcip.org/v1", MailURL: restmailURL},
}

// DefaultEnv is used when no environment is configured.
const DefaultEnv = "stage"

// LookupEnv resolves an environment name such as "stage" or "prod".
func LookupEnv(name string) (Endpoints, error) {
	if name == "" {
		name = DefaultEnv
	}
	ep, ok := environments[strings.ToLower(name)]
	if !ok {
		return Endpoints{}, fmt.Errorf("%w: %q", ErrUnknownEnv, name)
	}
	return ep, nil
}
