// Package proxy is the edge web server in front of the forum: name based
// virtual hosts, static directories with optional listings, a request body
// ceiling, and pass-through to the application over uwsgi or HTTP.
package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultListen is used when the config does not name a listen address.
const DefaultListen = ":80"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the whole proxy configuration.
type Config struct {
	Listen            string `yaml:"listen"`
	WorkerConnections int    `yaml:"worker_connections" validate:"gte=0"`
	// Upstreams names groups of backend addresses; requests are spread over
	// a group in turn.
	Upstreams map[string][]string `yaml:"upstreams" validate:"dive,keys,required,endkeys,min=1,dive,required"`
	Servers   []ServerConfig      `yaml:"servers" validate:"required,min=1,dive"`
}

// ServerConfig is one virtual host.
type ServerConfig struct {
	ServerName        []string         `yaml:"server_name" validate:"dive,required"`
	DefaultServer     bool             `yaml:"default_server"`
	Return            int              `yaml:"return" validate:"omitempty,gte=100,lte=599"`
	ClientMaxBodySize string           `yaml:"client_max_body_size"`
	AccessLog         string           `yaml:"access_log"`
	ErrorLog          string           `yaml:"error_log"`
	Root              string           `yaml:"root"`
	Locations         []LocationConfig `yaml:"locations" validate:"dive"`
}

// LocationConfig routes a path prefix to one target.
type LocationConfig struct {
	Path      string `yaml:"path" validate:"required,startswith=/"`
	Alias     string `yaml:"alias"`
	Autoindex bool   `yaml:"autoindex"`
	UwsgiPass string `yaml:"uwsgi_pass"`
	ProxyPass string `yaml:"proxy_pass" validate:"omitempty,url"`
	Return    int    `yaml:"return" validate:"omitempty,gte=100,lte=599"`
}

// IsStatic reports whether the location serves files.
func (l LocationConfig) IsStatic() bool {
	return l.UwsgiPass == "" && l.ProxyPass == "" && l.Return == 0
}

func (l LocationConfig) targets() int {
	n := 0
	for _, set := range []bool{l.Alias != "", l.UwsgiPass != "", l.ProxyPass != "", l.Return != 0} {
		if set {
			n++
		}
	}
	return n
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML config. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("proxy config is empty")
		}
		return nil, fmt.Errorf("failed to parse proxy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the relations between servers,
// locations and upstreams.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid proxy config: %w", err)
	}

	names := make(map[string]int)
	defaults := 0
	for i, srv := range c.Servers {
		if srv.DefaultServer {
			defaults++
		}
		for _, name := range srv.ServerName {
			key := strings.ToLower(name)
			if prev, ok := names[key]; ok && key != "_" {
				return fmt.Errorf("server_name %q is used by servers %d and %d", name, prev, i)
			}
			names[key] = i
		}
		if _, err := ParseSize(srv.ClientMaxBodySize); err != nil {
			return fmt.Errorf("server %d: %w", i, err)
		}

		paths := make(map[string]bool)
		for _, loc := range srv.Locations {
			if paths[loc.Path] {
				return fmt.Errorf("server %d: duplicate location %s", i, loc.Path)
			}
			paths[loc.Path] = true

			switch n := loc.targets(); {
			case n > 1:
				return fmt.Errorf("location %s: only one of alias, uwsgi_pass, proxy_pass or return may be set", loc.Path)
			case n == 0 && srv.Root == "":
				return fmt.Errorf("location %s: needs alias, uwsgi_pass, proxy_pass, return or a server root", loc.Path)
			}
			if loc.UwsgiPass != "" && !c.knownAddress(loc.UwsgiPass) {
				return fmt.Errorf("location %s: unknown upstream %q", loc.Path, loc.UwsgiPass)
			}
			if loc.ProxyPass != "" {
				u, _ := url.Parse(loc.ProxyPass)
				if u.Scheme != "http" && u.Scheme != "https" {
					return fmt.Errorf("location %s: proxy_pass must be an http or https URL", loc.Path)
				}
			}
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%d servers are marked default_server; at most one is allowed", defaults)
	}
	return nil
}

// knownAddress accepts named upstreams, host:port pairs and unix sockets.
func (c *Config) knownAddress(addr string) bool {
	if _, ok := c.Upstreams[addr]; ok {
		return true
	}
	return strings.HasPrefix(addr, "unix:") || strings.Contains(addr, ":")
}

// ParseSize reads sizes the way the proxy config writes them: a number
// with an optional k, m or g suffix (powers of 1024). Unit strings such as
// "10MB" or "1.5 GiB" are accepted too. An empty string means no limit.
func ParseSize(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	switch s[len(s)-1] {
	case 'k', 'K':
		s = s[:len(s)-1] + "KiB"
	case 'm', 'M':
		s = s[:len(s)-1] + "MiB"
	case 'g', 'G':
		s = s[:len(s)-1] + "GiB"
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", orig, err)
	}
	return int64(n), nil
}
