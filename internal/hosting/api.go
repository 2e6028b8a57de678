package hosting

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	deploymentsPath = "/api/v1/deployments"
	tokenPath       = "/api/v1/auth/token"
	validatePath    = "/api/v1/auth/validate"
)

type prepareRequest struct {
	AppName          string `json:"app_name"`
	Key              string `json:"key,omitempty"`
	FrontendHostname string `json:"frontend_hostname,omitempty"`
}

// PrepareDeploy asks the control plane to reserve a deployment key for app.
func (c *Client) PrepareDeploy(ctx context.Context, appName, key, frontendHostname string) (PrepareResponse, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	data, err := json.Marshal(prepareRequest{AppName: appName, Key: key, FrontendHostname: frontendHostname})
	if err != nil {
		return PrepareResponse{}, newValidationError("failed to encode prepare-deploy request", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, deploymentsPath+"/prepare", bytes.NewReader(data))
	if err != nil {
		return PrepareResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return PrepareResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PrepareResponse{}, WrapHTTPError(resp, "prepare-deploy failed")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PrepareResponse{}, newNetworkError("failed to read prepare-deploy reply", err)
	}
	return DecodePrepareResponse(body)
}

// Deploy uploads the metadata and both archives in a single multipart request.
// The body is streamed from disk, so only ctx bounds the upload.
func (c *Client) Deploy(ctx context.Context, in DeployRequest) (DeployResponse, error) {
	meta, err := json.Marshal(in)
	if err != nil {
		return DeployResponse{}, newValidationError("failed to encode deploy metadata", err)
	}
	archives := []struct{ field, path string }{{"frontend", in.FrontendFile}, {"backend", in.BackendFile}}
	for _, a := range archives {
		if a.path == "" {
			return DeployResponse{}, newValidationError(fmt.Sprintf("no %s archive to upload", a.field), nil)
		}
		if _, err := os.Stat(a.path); err != nil {
			return DeployResponse{}, fmt.Errorf("failed to open %s archive: %w", a.field, err)
		}
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := writer.WriteField("metadata", string(meta))
		for _, a := range archives {
			if err != nil {
				break
			}
			err = attachFile(writer, a.field, a.path)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, deploymentsPath, pr)
	if err != nil {
		pr.Close()
		return DeployResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return DeployResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeployResponse{}, WrapHTTPError(resp, "deploy failed")
	}
	var out DeployResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return DeployResponse{}, newValidationError("failed to decode deploy reply", err)
	}
	return out, nil
}

func attachFile(writer *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s archive: %w", field, err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to write %s part: %w", field, err)
	}
	return nil
}

// Poll reports whether target answers 200. Transport errors count as "not yet".
func (c *Client) Poll(ctx context.Context, target string) bool {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Sugar().Debugf("poll %s: %v", target, err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// BackendPingURL is the health URL polled for a deployed backend.
func BackendPingURL(backendURL string) string {
	return strings.TrimRight(backendURL, "/") + "/ping"
}

// ListDeployments returns every deployment owned by the current token.
func (c *Client) ListDeployments(ctx context.Context) ([]Deployment, error) {
	var out []Deployment
	if err := c.doJSON(ctx, http.MethodGet, deploymentsPath, nil, &out, "list deployments"); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDeployment removes the deployment with the given key.
func (c *Client) DeleteDeployment(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, deploymentsPath+"/"+url.PathEscape(key), nil, nil, "delete deployment")
}

// GetDeploymentStatus returns the backend and frontend status of a deployment.
func (c *Client) GetDeploymentStatus(ctx context.Context, key string) (DeploymentStatus, error) {
	var out DeploymentStatus
	err := c.doJSON(ctx, http.MethodGet, deploymentsPath+"/"+url.PathEscape(key)+"/status", nil, &out, "deployment status")
	return out, err
}

// StreamLogs copies the payload of every "data:" line of the log stream to fn
// until the stream ends or ctx is cancelled. The client timeout does not apply.
func (c *Client) StreamLogs(ctx context.Context, key string, fn func(line string)) error {
	req, err := c.newRequest(ctx, http.MethodGet, deploymentsPath+"/"+url.PathEscape(key)+"/logs", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WrapHTTPError(resp, "log stream failed")
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			fn(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newNetworkError("log stream interrupted", err)
	}
	return nil
}

// FetchToken asks whether the browser login for requestID has completed.
// A 404 or an empty token means "not yet" and is reported as an error.
func (c *Client) FetchToken(ctx context.Context, requestID string) (Token, error) {
	var out Token
	path := tokenPath + "?request_id=" + url.QueryEscape(requestID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, "fetch token"); err != nil {
		return Token{}, err
	}
	if out.AccessToken == "" {
		return Token{}, newValidationError("token not issued yet", nil)
	}
	return out, nil
}

// ValidateToken checks token against the control plane. A 401 or 403 yields
// ErrInvalidToken; any other failure is returned as is so callers can retry.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, validatePath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidToken
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return WrapHTTPError(resp, "validate token failed")
	}
	return nil
}

// CleanUp discards any staging state the control plane kept for key.
func (c *Client) CleanUp(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, deploymentsPath+"/"+url.PathEscape(key)+"/staging", nil, nil, "clean up")
}
