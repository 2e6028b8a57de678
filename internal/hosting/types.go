package hosting

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Endpoint identifies a deployment and where it is served.
type Endpoint struct {
	Key       string `json:"key"`
	APIURL    string `json:"api_url"`
	DeployURL string `json:"deploy_url"`
}

// PrepareReply is the outcome of a prepare-deploy call. It is one of
// Confirmed, Existing or Suggestion.
type PrepareReply interface {
	isPrepareReply()
}

// Confirmed means the control plane reserved the requested (or a fresh) key.
type Confirmed Endpoint

// Existing lists deployments the app already has; deploying overwrites one of them.
type Existing struct {
	Deployments []Endpoint
}

// Suggestion means the requested key is taken and the control plane proposes another.
type Suggestion Endpoint

func (Confirmed) isPrepareReply()  {}
func (Existing) isPrepareReply()   {}
func (Suggestion) isPrepareReply() {}

// PrepareResponse is the decoded prepare-deploy reply.
type PrepareResponse struct {
	AppPrefix string
	Reply     PrepareReply
}

type prepareWire struct {
	AppPrefix  string     `json:"app_prefix"`
	Reply      *Endpoint  `json:"reply,omitempty"`
	Existing   []Endpoint `json:"existing,omitempty"`
	Suggestion *Endpoint  `json:"suggestion,omitempty"`
}

// DecodePrepareResponse decodes a prepare-deploy body into its tagged form.
// Exactly one of reply, existing or suggestion must be populated.
func DecodePrepareResponse(data []byte) (PrepareResponse, error) {
	var wire prepareWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return PrepareResponse{}, newValidationError("malformed prepare-deploy reply", err)
	}

	var branches []PrepareReply
	if wire.Reply != nil {
		branches = append(branches, Confirmed(*wire.Reply))
	}
	if len(wire.Existing) > 0 {
		branches = append(branches, Existing{Deployments: wire.Existing})
	}
	if wire.Suggestion != nil {
		branches = append(branches, Suggestion(*wire.Suggestion))
	}

	switch len(branches) {
	case 0:
		return PrepareResponse{}, newValidationError("prepare-deploy reply has no reply, existing or suggestion", nil)
	case 1:
		return PrepareResponse{AppPrefix: wire.AppPrefix, Reply: branches[0]}, nil
	default:
		return PrepareResponse{}, newValidationError(fmt.Sprintf("prepare-deploy reply has %d branches populated", len(branches)), nil)
	}
}

// DeployRequest is the metadata sent alongside the uploaded archives.
type DeployRequest struct {
	Key              string            `json:"key"`
	AppName          string            `json:"app_name"`
	AppPrefix        string            `json:"app_prefix"`
	Regions          []string          `json:"regions"`
	CPUs             int               `json:"cpus,omitempty"`
	MemoryMB         int               `json:"memory_mb,omitempty"`
	AutoStart        bool              `json:"auto_start"`
	AutoStop         bool              `json:"auto_stop"`
	FrontendHostname string            `json:"frontend_hostname,omitempty"`
	Envs             map[string]string `json:"envs,omitempty"`

	FrontendFile string `json:"-"`
	BackendFile  string `json:"-"`
}

// DeployResponse carries the URLs the new deployment will be served from.
type DeployResponse struct {
	BackendURL  string `json:"backend_url"`
	FrontendURL string `json:"frontend_url"`
}

// Deployment is a row of the deployments listing, kept as a loose map so --json
// output stays lossless.
type Deployment map[string]any

// ComponentStatus describes one half of a deployment.
type ComponentStatus struct {
	Reachable bool   `json:"reachable"`
	Status    string `json:"status,omitempty"`
	URL       string `json:"url,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// LocalUpdatedAt renders UpdatedAt in the local time zone, or "N/A".
func (c ComponentStatus) LocalUpdatedAt() string {
	if strings.TrimSpace(c.UpdatedAt) == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, c.UpdatedAt)
	if err != nil {
		return c.UpdatedAt
	}
	return t.Local().Format("2006-01-02 15:04:05 MST")
}

// DeploymentStatus is the reply of the status endpoint.
type DeploymentStatus struct {
	Backend  ComponentStatus `json:"backend"`
	Frontend ComponentStatus `json:"frontend"`
}

// Token is an issued access token with the code shown during login.
type Token struct {
	AccessToken string `json:"access_token"`
	Code        string `json:"code"`
}
