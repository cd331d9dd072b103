package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"gopkg.in/ini.v1"

	"promethium-examples/runner/internal/config"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ErrNoAPIKey is returned when no API key is configured anywhere.
var ErrNoAPIKey = errors.New("no API key configured: set PM_API_KEY or add api_key to the credentials file")

// Credentials are the API credentials used by the workflow client.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// LoadCredentials reads an ini credentials file of the form
//
//	[default]
//	api_key = ...
//	base_url = ...
//
// A missing file yields empty credentials.
func LoadCredentials(path string) (*Credentials, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &Credentials{}, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &Credentials{}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}

	section := file.Section("default")
	return &Credentials{
		APIKey:  strings.TrimSpace(section.Key("api_key").String()),
		BaseURL: strings.TrimRight(strings.TrimSpace(section.Key("base_url").String()), "/"),
	}, nil
}

// Resolve merges configuration and the credentials file. Values from the
// environment or config file take precedence. The base URL from the
// credentials file is only used when the configuration still has the default.
func Resolve(cfg *config.Config) (*Credentials, error) {
	fileCreds, err := LoadCredentials(cfg.API.CredentialsFile)
	if err != nil {
		return nil, err
	}

	creds := &Credentials{APIKey: cfg.API.Key, BaseURL: cfg.API.BaseURL}
	if creds.APIKey == "" {
		creds.APIKey = fileCreds.APIKey
	}
	if creds.BaseURL == config.DefaultBaseURL && fileCreds.BaseURL != "" {
		creds.BaseURL = fileCreds.BaseURL
	}
	if creds.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return creds, nil
}

// TokenSource returns a static bearer token source for an API key.
func TokenSource(apiKey string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})
}

// NewHTTPClient returns an HTTP client that authenticates every request with
// the given token source.
func NewHTTPClient(ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   http.DefaultTransport,
		},
		Timeout: timeout,
	}
}

// RequireAPIKey is middleware that rejects requests without the expected
// bearer token. An empty key disables the check.
func RequireAPIKey(key string, logger Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}

			token, ok := bearerToken(c.Request())
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				logger.Debug("rejected request", "path", c.Path(), "remote", c.RealIP())
				c.Response().Header().Set("WWW-Authenticate", `Bearer realm="promethium"`)
				return c.JSON(http.StatusUnauthorized, map[string]any{
					"type":   "about:blank",
					"title":  "Unauthorized",
					"status": http.StatusUnauthorized,
					"detail": "missing or invalid API key",
				})
			}
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
