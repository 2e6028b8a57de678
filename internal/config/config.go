package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file created by `trellis init`.
const FileName = "trellis.yaml"

// Defaults applied when the project file leaves a value unset.
const (
	DefaultFrontendPort = 3000
	DefaultBackendPort  = 8000
	DefaultBackendHost  = "0.0.0.0"
	DefaultLogLevel     = "info"
	DefaultDBURL        = "sqlite:///trellis.db"

	DefaultCPBackendURL = "https://cp.trellis.dev"
	DefaultCPWebURL     = "https://trellis.dev/login"

	DefaultPollAttempts     = 60
	DefaultAuthPollAttempts = 60
	DefaultDrainWait        = 60 * time.Second
)

// Environment variables that override project values.
const (
	EnvAPIURL       = "TRELLIS_API_URL"
	EnvDeployURL    = "TRELLIS_DEPLOY_URL"
	EnvDBURL        = "TRELLIS_DB_URL"
	EnvCPBackendURL = "TRELLIS_CP_BACKEND_URL"
	EnvCPWebURL     = "TRELLIS_CP_WEB_URL"
	EnvSkipCompile  = "TRELLIS_SKIP_COMPILE"
)

// ErrInvalid is returned when the project file is present but unusable.
var ErrInvalid = errors.New("invalid configuration")

// ControlPlane locates the hosting service.
type ControlPlane struct {
	BackendURL string `yaml:"backend_url,omitempty"`
	WebURL     string `yaml:"web_url,omitempty"`
}

// Hosting tunes the deploy and login poll budgets.
type Hosting struct {
	BackendPollAttempts  int      `yaml:"backend_poll_attempts,omitempty"`
	FrontendPollAttempts int      `yaml:"frontend_poll_attempts,omitempty"`
	AuthPollAttempts     int      `yaml:"auth_poll_attempts,omitempty"`
	DrainWait            Duration `yaml:"drain_wait,omitempty"`
}

// Project is the content of trellis.yaml.
type Project struct {
	AppName          string       `yaml:"app_name"`
	AppModule        string       `yaml:"app_module,omitempty"`
	FrontendPort     int          `yaml:"frontend_port,omitempty"`
	BackendPort      int          `yaml:"backend_port,omitempty"`
	BackendHost      string       `yaml:"backend_host,omitempty"`
	APIURL           string       `yaml:"api_url,omitempty"`
	DeployURL        string       `yaml:"deploy_url,omitempty"`
	DBURL            string       `yaml:"db_url,omitempty"`
	LogLevel         string       `yaml:"loglevel,omitempty"`
	FrontendPackages []string     `yaml:"frontend_packages,omitempty"`
	ControlPlane     ControlPlane `yaml:"control_plane,omitempty"`
	Hosting          Hosting      `yaml:"hosting,omitempty"`
}

// Duration is a time.Duration written as "60s" in YAML. Bare integers are seconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if secs, err := strconv.Atoi(node.Value); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", ErrInvalid, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// New returns a project named appName with every default filled in and a
// local sqlite database.
func New(appName string) Project {
	p := Project{AppName: appName, DBURL: DefaultDBURL}
	p.applyDefaults()
	return p
}

func (p *Project) applyDefaults() {
	if p.AppModule == "" {
		p.AppModule = p.AppName + "." + p.AppName
	}
	if p.FrontendPort == 0 {
		p.FrontendPort = DefaultFrontendPort
	}
	if p.BackendPort == 0 {
		p.BackendPort = DefaultBackendPort
	}
	if p.BackendHost == "" {
		p.BackendHost = DefaultBackendHost
	}
	if p.APIURL == "" {
		p.APIURL = fmt.Sprintf("http://localhost:%d", p.BackendPort)
	}
	if p.DeployURL == "" {
		p.DeployURL = fmt.Sprintf("http://localhost:%d", p.FrontendPort)
	}
	if p.LogLevel == "" {
		p.LogLevel = DefaultLogLevel
	}
	if p.ControlPlane.BackendURL == "" {
		p.ControlPlane.BackendURL = DefaultCPBackendURL
	}
	if p.ControlPlane.WebURL == "" {
		p.ControlPlane.WebURL = DefaultCPWebURL
	}
	if p.Hosting.BackendPollAttempts == 0 {
		p.Hosting.BackendPollAttempts = DefaultPollAttempts
	}
	if p.Hosting.FrontendPollAttempts == 0 {
		p.Hosting.FrontendPollAttempts = DefaultPollAttempts
	}
	if p.Hosting.AuthPollAttempts == 0 {
		p.Hosting.AuthPollAttempts = DefaultAuthPollAttempts
	}
	if p.Hosting.DrainWait == 0 {
		p.Hosting.DrainWait = Duration(DefaultDrainWait)
	}
}

// applyEnv lets TRELLIS_* variables override file values.
func (p *Project) applyEnv(getenv func(string) string) {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvAPIURL, &p.APIURL},
		{EnvDeployURL, &p.DeployURL},
		{EnvDBURL, &p.DBURL},
		{EnvCPBackendURL, &p.ControlPlane.BackendURL},
		{EnvCPWebURL, &p.ControlPlane.WebURL},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(getenv(o.key)); v != "" {
			*o.dst = v
		}
	}
}

// Write writes the project as a YAML file.
func Write(path string, p Project) error {
	data, err := yaml.Marshal(&p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read reads a project file, fills defaults and applies environment overrides.
func Read(path string) (Project, error) {
	return read(path, os.Getenv)
}

func read(path string, getenv func(string) string) (Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.AppName == "" {
		return Project{}, fmt.Errorf("%w: missing app_name", ErrInvalid)
	}

	p.applyDefaults()
	p.applyEnv(getenv)
	return p, nil
}
