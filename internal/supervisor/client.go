// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package supervisor is a typed client for the Home Assistant Supervisor
// REST API. It is a pass-through layer: one HTTP call per method, no
// retries, no caching; failures surface once to the caller.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	apperrors "hamcp/internal/errors"
)

const requestTimeout = 60 * time.Second

// Addon slugs are the only client-supplied value interpolated into request
// paths; anything else is rejected before a URL is built.
var slugPattern = regexp.MustCompile(`^[a-z0-9_][a-z0-9_.-]*$`)

// Client talks to the Supervisor API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient builds a supervisor client. The token is mandatory: without it
// every request would be rejected by the Supervisor anyway.
func NewClient(baseURL, token string, log zerolog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("supervisor token is required")
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.With().Str("component", "supervisor").Logger(),
	}, nil
}

// Addon is a single installed add-on as reported by the Supervisor.
type Addon struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	State       string `json:"state,omitempty"`
}

// Entity is one Home Assistant entity state.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged string         `json:"last_changed,omitempty"`
}

// envelope is the standard Supervisor response wrapper.
type envelope struct {
	Result  string          `json:"result"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// ListAddons returns the installed add-ons.
func (c *Client) ListAddons(ctx context.Context) ([]Addon, error) {
	var data struct {
		Addons []Addon `json:"addons"`
	}
	if err := c.getJSON(ctx, "/addons", &data); err != nil {
		return nil, err
	}
	return data.Addons, nil
}

// AddonInfo returns details for one add-on.
func (c *Client) AddonInfo(ctx context.Context, slug string) (map[string]any, error) {
	if err := validateSlug(slug); err != nil {
		return nil, err
	}
	var data map[string]any
	if err := c.getJSON(ctx, "/addons/"+slug+"/info", &data); err != nil {
		return nil, err
	}
	return data, nil
}

// AddonLogs returns the log tail for one add-on.
func (c *Client) AddonLogs(ctx context.Context, slug string) (string, error) {
	if err := validateSlug(slug); err != nil {
		return "", err
	}
	return c.getText(ctx, "/addons/"+slug+"/logs")
}

// Logs returns the log stream for a core component: "supervisor", "core"
// or "host".
func (c *Client) Logs(ctx context.Context, source string) (string, error) {
	switch source {
	case "supervisor", "core", "host":
	default:
		return "", apperrors.New(apperrors.CodeInvalidArguments,
			"log source must be one of: supervisor, core, host")
	}
	return c.getText(ctx, "/"+source+"/logs")
}

// States returns all entity states via the Core API proxy.
func (c *Client) States(ctx context.Context) ([]Entity, error) {
	var entities []Entity
	if err := c.getCoreJSON(ctx, "/states", &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Services returns the service registry via the Core API proxy.
func (c *Client) Services(ctx context.Context) (json.RawMessage, error) {
	var services json.RawMessage
	if err := c.getCoreJSON(ctx, "/services", &services); err != nil {
		return nil, err
	}
	return services, nil
}

// CoreConfig returns the Home Assistant configuration via the Core API
// proxy.
func (c *Client) CoreConfig(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.getCoreJSON(ctx, "/config", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return apperrors.New(apperrors.CodeInvalidArguments, "invalid add-on slug")
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalIO, "supervisor request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.log.Error().Int("status", resp.StatusCode).Str("path", path).Msg("supervisor request failed")
		return nil, apperrors.New(apperrors.CodeInternalIO,
			fmt.Sprintf("supervisor returned status %d: %s", resp.StatusCode, supervisorMessage(body)))
	}
	return resp, nil
}

// getJSON fetches a Supervisor endpoint and unwraps the response envelope.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to decode supervisor response", err)
	}
	if env.Result != "ok" {
		return apperrors.New(apperrors.CodeInternalIO,
			fmt.Sprintf("supervisor error: %s", env.Message))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "unexpected supervisor payload", err)
	}
	return nil
}

// getCoreJSON fetches a Core API endpoint through the Supervisor proxy;
// the Core API answers plain JSON without the envelope.
func (c *Client) getCoreJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, "/core/api"+endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalIO, "failed to decode core API response", err)
	}
	return nil
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	resp, err := c.do(ctx, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternalIO, "failed to read supervisor response", err)
	}
	return string(body), nil
}

func supervisorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return string(body)
}
