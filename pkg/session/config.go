package session

import (
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default ports by protocol, fixed by the management appliance.
var portByProtocol = map[string]int{
	"http":  12080,
	"https": 12443,
}

// Config carries the parameters needed to establish a session. Password
// selects the authentication mode: when set, a password logon exchange is
// performed (remote mode); when empty, file-based local authentication is
// used and the server hands back a token file path readable only by a
// trusted local caller.
type Config struct {
	Host     string `validate:"required"`
	Username string
	Password string

	// Protocol and Port default based on the authentication mode:
	// http/12080 for local, https/12443 for remote.
	Protocol string `validate:"omitempty,oneof=http https"`
	Port     int    `validate:"omitempty,min=1,max=65535"`

	Timeout time.Duration

	// CertPath and CertExt locate the trust certificate for the host as
	// {CertPath}{Host}{CertExt}. Ignored for http.
	CertPath   string
	CertExt    string
	SkipVerify bool

	// AuditMemento tags requests for log correlation on the server. When
	// empty, the local OS username is used.
	AuditMemento string
}

var validate = validator.New()

// withDefaults validates the config and returns a copy with all defaults
// resolved.
func (c Config) withDefaults() (Config, error) {
	if err := validate.Struct(c); err != nil {
		return c, ErrInvalidConfig.Err(err)
	}

	local := c.Password == ""

	if c.Protocol == "" {
		if local {
			c.Protocol = "http"
		} else {
			c.Protocol = "https"
		}
	}
	if c.Port == 0 {
		c.Port = portByProtocol[c.Protocol]
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.CertPath == "" {
		c.CertPath = "/etc/ssl/certs/"
	}
	if c.CertExt == "" {
		c.CertExt = ".crt"
	}
	if c.Username == "" && local {
		// Local auth only uses the username to name the token file.
		c.Username = fmt.Sprintf("pvmclient_%d", time.Now().Unix())
	}
	if c.Username == "" {
		return c, ErrInvalidConfig.Msg("username is required for password authentication")
	}
	if c.AuditMemento == "" {
		c.AuditMemento = "default"
		if u, err := user.Current(); err == nil && u.Username != "" {
			c.AuditMemento = u.Username
		}
	}
	return c, nil
}

// endpoint renders the base URL, bracketing bare IPv6 hosts.
func (c Config) endpoint() string {
	host := c.Host
	if !strings.HasPrefix(host, "[") && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d", c.Protocol, host, c.Port)
}

// certFile returns the trust certificate path, or "" for http.
func (c Config) certFile() string {
	if c.Protocol != "https" || c.SkipVerify {
		return ""
	}
	return c.CertPath + c.Host + c.CertExt
}
