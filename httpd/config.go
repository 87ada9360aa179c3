package httpd

import (
	"github.com/oddbit-project/s3browser/utils"
)

const (
	ServerDefaultName         = "s3browser"
	ServerDefaultBindAddr     = "127.0.0.1:3001"
	ServerDefaultReadTimeout  = 600 // seconds; part uploads can be slow
	ServerDefaultWriteTimeout = 600

	ErrNilConfig       = utils.Error("config is nil")
	ErrInvalidBindAddr = utils.Error("bind address cannot be empty")
	ErrPartialTLS      = utils.Error("both tlsCert and tlsKey are required for TLS")
)

// ServerConfig configures the HTTP server; TLS is enabled when both
// cert and key paths are set
type ServerConfig struct {
	BindAddr     string `json:"bindAddr"`
	ReadTimeout  int    `json:"readTimeout"`
	WriteTimeout int    `json:"writeTimeout"`
	Debug        bool   `json:"debug"`
	TLSCert      string `json:"tlsCert"`
	TLSKey       string `json:"tlsKey"`
}

func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		BindAddr:     ServerDefaultBindAddr,
		ReadTimeout:  ServerDefaultReadTimeout,
		WriteTimeout: ServerDefaultWriteTimeout,
	}
}

func (c *ServerConfig) Validate() error {
	if c.BindAddr == "" {
		return ErrInvalidBindAddr
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return ErrPartialTLS
	}
	return nil
}

// UseTLS reports whether the server should listen with TLS; session
// cookies become Secure when it does
func (c *ServerConfig) UseTLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}
