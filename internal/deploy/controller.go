package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harshul/trellis/internal/hosting"
	"github.com/harshul/trellis/internal/retry"
	"go.uber.org/zap"
)

const (
	// DefaultDrainWait is how long an overwritten deployment gets to come down.
	DefaultDrainWait = 60 * time.Second
	// DefaultPollAttempts is the per-component poll budget, one second apart.
	DefaultPollAttempts = 60

	cleanupTimeout = 10 * time.Second
)

// Uploader is the part of the control plane the controller talks to.
type Uploader interface {
	Deploy(ctx context.Context, req hosting.DeployRequest) (hosting.DeployResponse, error)
	Poll(ctx context.Context, url string) bool
	CleanUp(ctx context.Context, key string) error
}

// Artifacts are the exported archives to upload.
type Artifacts struct {
	Frontend string
	Backend  string
}

// Outcome reports how far the deployment got. A deployment that is uploaded
// but not yet reachable is not an error.
type Outcome struct {
	Response         hosting.DeployResponse
	BackendUp        bool
	FrontendUp       bool
	BackendAttempts  int
	FrontendAttempts int
}

// Up reports whether both components answered.
func (o Outcome) Up() bool {
	return o.BackendUp && o.FrontendUp
}

// Controller uploads a negotiated deployment and polls it until it is served.
type Controller struct {
	Client   Uploader
	Clock    retry.Clock
	Backend  retry.Policy
	Frontend retry.Policy
	// DrainWait is observed before polling when an existing deployment is overwritten.
	DrainWait time.Duration
	Notify    func(msg string)
	// Status shows a transient progress message and returns a func that clears it.
	Status func(msg string) (stop func())
	Logger *zap.Logger
}

// Run uploads the archives, waits for the deployment and always cleans up the
// staging state and local archives afterwards.
func (c *Controller) Run(ctx context.Context, art Artifacts, res Resolved, in Intent) (Outcome, error) {
	var out Outcome
	defer c.cleanUp(ctx, res.Key, art)

	req := hosting.DeployRequest{
		Key:              res.Key,
		AppName:          res.AppName,
		AppPrefix:        res.AppPrefix,
		Regions:          res.Regions,
		CPUs:             in.CPUs,
		MemoryMB:         in.MemoryMB,
		AutoStart:        in.AutoStart,
		AutoStop:         in.AutoStop,
		FrontendHostname: in.FrontendHostname,
		Envs:             res.Envs,
		FrontendFile:     art.Frontend,
		BackendFile:      art.Backend,
	}

	stop := c.status("Uploading code ...")
	resp, err := c.Client.Deploy(ctx, req)
	stop()
	if err != nil {
		return out, fmt.Errorf("unable to deploy: %w", err)
	}
	out.Response = resp
	c.logger().Debug("deploy response", zap.String("backend", resp.BackendURL), zap.String("frontend", resp.FrontendURL))
	c.notify("Deployment will start shortly.")

	if res.Overwrite && c.DrainWait > 0 {
		stop := c.status("Waiting for the old deployment to come down")
		err := c.clock().Sleep(ctx, c.DrainWait)
		stop()
		if err != nil {
			return out, err
		}
	}

	c.notify("Waiting for the new deployment to come up")
	out.BackendAttempts, out.BackendUp, err = c.poll(ctx, "Checking backend ...", c.Backend, hosting.BackendPingURL(resp.BackendURL))
	if err != nil {
		return out, err
	}
	if out.BackendUp {
		c.notify("Backend is up")
	} else {
		c.notify("Backend unreachable")
	}

	out.FrontendAttempts, out.FrontendUp, err = c.poll(ctx, "Checking frontend ...", c.Frontend, resp.FrontendURL)
	if err != nil {
		return out, err
	}
	if out.FrontendUp {
		c.notify("Frontend is up")
	} else {
		c.notify("Frontend unreachable")
	}
	return out, nil
}

func (c *Controller) poll(ctx context.Context, msg string, policy retry.Policy, url string) (int, bool, error) {
	if policy.MaxAttempts == 0 {
		policy = retry.Fixed(DefaultPollAttempts, time.Second)
	}
	stop := c.status(msg)
	defer stop()

	attempts, err := policy.Do(ctx, c.clock(), func(int) (bool, error) {
		return c.Client.Poll(ctx, url), nil
	})
	switch {
	case err == nil:
		return attempts, true, nil
	case errors.Is(err, retry.ErrExhausted):
		return attempts, false, nil
	default:
		return attempts, false, err
	}
}

// cleanUp runs even after cancellation, on a short context of its own. Its
// failures are logged and dropped.
func (c *Controller) cleanUp(parent context.Context, key string, art Artifacts) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), cleanupTimeout)
	defer cancel()

	if key != "" {
		if err := c.Client.CleanUp(ctx, key); err != nil {
			c.logger().Debug("control plane clean up", zap.String("key", key), zap.Error(err))
		}
	}
	for _, path := range []string{art.Frontend, art.Backend} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger().Debug("remove archive", zap.String("path", path), zap.Error(err))
		}
	}
}

func (c *Controller) notify(msg string) {
	if c.Notify != nil {
		c.Notify(msg)
	}
}

func (c *Controller) status(msg string) func() {
	if c.Status == nil {
		return func() {}
	}
	return c.Status(msg)
}

func (c *Controller) clock() retry.Clock {
	if c.Clock == nil {
		return retry.RealClock()
	}
	return c.Clock
}

func (c *Controller) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
