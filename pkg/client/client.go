package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/types"
)

// Client talks to the master's HTTP API. It is shared by the CLI and the
// agent. All requests carry a fixed timeout; retries are left to the
// caller's loop rather than done in place.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the master at the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks the master's liveness endpoint.
func (c *Client) Health() error {
	return c.do(http.MethodGet, "/health", nil, nil)
}

// CreateDeployment creates a deployment.
func (c *Client) CreateDeployment(req types.CreateDeploymentRequest) (types.DeploymentResponse, error) {
	var out types.DeploymentResponse
	err := c.do(http.MethodPost, "/deployments", req, &out)
	return out, err
}

// ListDeployments returns all deployments.
func (c *Client) ListDeployments() ([]types.DeploymentResponse, error) {
	var out []types.DeploymentResponse
	err := c.do(http.MethodGet, "/deployments", nil, &out)
	return out, err
}

// GetDeployment returns one deployment by name.
func (c *Client) GetDeployment(name string) (types.DeploymentResponse, error) {
	var out types.DeploymentResponse
	err := c.do(http.MethodGet, "/deployments/"+url.PathEscape(name), nil, &out)
	return out, err
}

// UpdateDeployment applies a partial update to a deployment.
func (c *Client) UpdateDeployment(name string, update types.UpdateDeploymentRequest) (types.DeploymentResponse, error) {
	var out types.DeploymentResponse
	err := c.do(http.MethodPut, "/deployments/"+url.PathEscape(name), update, &out)
	return out, err
}

// DeleteDeployment deletes a deployment.
func (c *Client) DeleteDeployment(name string) error {
	return c.do(http.MethodDelete, "/deployments/"+url.PathEscape(name), nil, nil)
}

// ListPods returns all pods.
func (c *Client) ListPods() ([]types.Pod, error) {
	var out []types.Pod
	err := c.do(http.MethodGet, "/pods", nil, &out)
	return out, err
}

// GetPod returns one pod by ID.
func (c *Client) GetPod(id string) (types.Pod, error) {
	var out types.Pod
	err := c.do(http.MethodGet, "/pods/"+url.PathEscape(id), nil, &out)
	return out, err
}

// DeletePod asks the master to terminate a pod.
func (c *Client) DeletePod(id string) error {
	return c.do(http.MethodDelete, "/pods/"+url.PathEscape(id), nil, nil)
}

// ReportPodStatus reports an agent-observed pod transition.
func (c *Client) ReportPodStatus(id string, update types.PodStatusUpdate) error {
	return c.do(http.MethodPost, "/pods/"+url.PathEscape(id)+"/status", update, nil)
}

// ListNodes returns all nodes with usage.
func (c *Client) ListNodes() ([]types.NodeResponse, error) {
	var out []types.NodeResponse
	err := c.do(http.MethodGet, "/nodes", nil, &out)
	return out, err
}

// RegisterNode registers the calling agent's node.
func (c *Client) RegisterNode(req types.RegisterNodeRequest) (types.Node, error) {
	var out types.Node
	err := c.do(http.MethodPost, "/nodes/register", req, &out)
	return out, err
}

// Heartbeat sends a liveness signal, optionally carrying batched pod
// status reports.
func (c *Client) Heartbeat(nodeName string, reports []types.PodStatusReport) error {
	body := types.HeartbeatRequest{PodStatuses: reports}
	return c.do(http.MethodPost, "/nodes/"+url.PathEscape(nodeName)+"/heartbeat", body, nil)
}

// ListNodePods returns the pods bound to the given node. The agent's
// executor loop polls this.
func (c *Client) ListNodePods(nodeName string) ([]types.Pod, error) {
	var out []types.Pod
	err := c.do(http.MethodGet, "/nodes/"+url.PathEscape(nodeName)+"/pods", nil, &out)
	return out, err
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errdefs.Unavailable(c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var apiErr types.ErrorResponse
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		message = apiErr.Error
	}
	return wrapStatus(resp.StatusCode, message)
}

// wrapStatus converts an HTTP error status back into an error kind. A
// status shared by several kinds decodes to one of them: 400 (invalid spec
// or illegal transition) always becomes ErrInvalidSpec.
func wrapStatus(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", message, errdefs.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", message, errdefs.ErrAlreadyExists)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", message, errdefs.ErrInvalidSpec)
	case http.StatusGone:
		return fmt.Errorf("%s: %w", message, errdefs.ErrEvicted)
	default:
		return fmt.Errorf("%s (status %d)", message, status)
	}
}
