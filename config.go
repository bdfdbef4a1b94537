package grantrelay

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dpup/grantrelay/internal/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFile is discovered in the working directory or its parents at
// startup.
const ConfigFile = "grantrelay.yaml"

// ConfigKeyInfo describes a registered configuration key.
type ConfigKeyInfo = config.KeyInfo

// Config holds the process configuration. Later sources override earlier
// ones:
//
//  1. defaults of registered keys
//  2. grantrelay.yaml, if one is found
//  3. GR__ environment variables, GR__GOOGLE__CLIENT_ID sets google.clientId
//  4. LoadConfigFile and LoadConfigDefaults calls
var Config = koanf.New(".")

const (
	defaultPort = 8000
	defaultHost = "localhost"
)

func init() {
	RegisterConfigKeys(coreConfigKeys()...)

	if path := config.SearchForConfig(ConfigFile, "."); path != "" {
		if err := LoadConfigFile(path); err != nil {
			panic(err)
		}
	}
	if err := LoadConfigEnv(); err != nil {
		panic("grantrelay: reading environment: " + err.Error())
	}
}

// LoadConfigEnv reads GR__ variables from the environment into Config. The
// CLI calls it again after loading .env files.
func LoadConfigEnv() error {
	return Config.Load(env.Provider(config.EnvPrefix, ".", config.TransformEnv), nil)
}

// RegisterConfigKeys declares keys a package reads, usually from init. A
// default is applied unless the key already has a value.
func RegisterConfigKeys(infos ...ConfigKeyInfo) {
	config.Register(infos...)
	config.ApplyDefaults(Config)
}

// RegisteredConfigKeys lists every registered key, sorted.
func RegisteredConfigKeys() []ConfigKeyInfo {
	return config.All()
}

// ConfigWarnings describes loaded keys nobody registered, with suggestions for
// likely typos. It is empty when everything is known.
func ConfigWarnings() string {
	return config.FormatWarnings(config.Validate(Config))
}

// LoadConfigFile merges a YAML file into Config.
func LoadConfigFile(path string) error {
	if err := Config.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file '%s': %w", path, err)
	}
	return nil
}

// LoadConfigDefaults merges values into Config. Keys use dotted paths. Tests
// use it to override configuration.
func LoadConfigDefaults(values map[string]interface{}) {
	if err := Config.Load(confmap.Provider(values, "."), nil); err != nil {
		panic("grantrelay: loading config values: " + err.Error())
	}
}

// ConfigString, ConfigBool, ConfigStrings and ConfigDuration read a key from
// Config, returning the zero value when it is unset.
func ConfigString(key string) string { return Config.String(key) }

func ConfigBool(key string) bool { return Config.Bool(key) }

func ConfigStrings(key string) []string { return Config.Strings(key) }

// ConfigDuration parses values such as "90s" or "1h".
func ConfigDuration(key string) time.Duration { return Config.Duration(key) }

// ConfigMustString reads a key that has no usable default. The error tells
// the operator which key is missing and how to set it.
func ConfigMustString(key, help string) (string, error) {
	if v := Config.String(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("required config '%s' not set: %s", key, help)
}

func coreConfigKeys() []ConfigKeyInfo {
	key := func(k, typ, desc string, def interface{}) ConfigKeyInfo {
		return ConfigKeyInfo{Key: k, Type: typ, Description: desc, Default: def}
	}
	return []ConfigKeyInfo{
		key("name", "string", "Service name shown to users", "grantrelay"),
		key("address", "string", "Public base URL of the service",
			"http://"+net.JoinHostPort(defaultHost, strconv.Itoa(defaultPort))),
		key("server.host", "string", "Interface to listen on", defaultHost),
		key("server.port", "int", "Port to listen on", defaultPort),
		key("server.tls.certFile", "string", "TLS certificate, enables HTTPS with server.tls.keyFile", nil),
		key("server.tls.keyFile", "string", "TLS private key", nil),
		key("server.security.xFramesOptions", "string", "X-Frame-Options value", string(XFramesOptionsDeny)),
		key("server.security.hstsExpiration", "duration", "Strict-Transport-Security max-age, unset disables HSTS", nil),
		key("server.security.hstsIncludeSubdomains", "bool", "Add includeSubDomains to HSTS", nil),
		key("server.security.hstsPreload", "bool", "Add preload to HSTS", nil),
		key("server.security.corsOrigins", "[]string", "Origins allowed by CORS, \"*\" for any", []string{AnyOrigin}),
		key("server.security.corsAllowMethods", "[]string", "Methods allowed in CORS preflights", []string{"GET", "POST"}),
		key("server.security.corsAllowHeaders", "[]string", "Headers allowed in CORS preflights", []string{"Authorization", "Content-Type"}),
		key("server.security.corsMaxAge", "duration", "How long browsers may cache a preflight", nil),
		key("logging.format", "string", "json or console", "json"),
		key("logging.level", "string", "Minimum level that is logged", "info"),
	}
}
