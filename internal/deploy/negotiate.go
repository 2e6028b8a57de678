package deploy

import (
	"context"
	"fmt"
	"strings"

	"github.com/harshul/trellis/internal/hosting"
	"go.uber.org/zap"
)

// State is a step of the key/parameter negotiation.
type State int

const (
	StateStart State = iota
	StatePrepared
	StateKeyConfirmed
	StateParamsConfirmed
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StatePrepared:
		return "prepared"
	case StateKeyConfirmed:
		return "key-confirmed"
	case StateParamsConfirmed:
		return "params-confirmed"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultMaxKeyAttempts caps how many names the operator may try after a suggestion.
const DefaultMaxKeyAttempts = 5

// Preparer reserves deployment keys.
type Preparer interface {
	PrepareDeploy(ctx context.Context, appName, key, frontendHostname string) (hosting.PrepareResponse, error)
}

// Prompter asks the operator for a line of input.
type Prompter interface {
	Input(title, defaultValue string) (string, error)
}

// Engine drives a deployment from intent to a Resolved deployment.
type Engine struct {
	Client   Preparer
	Prompter Prompter
	// Notify receives operator-facing progress messages.
	Notify         func(msg string)
	Logger         *zap.Logger
	MaxKeyAttempts int
	// OnState, if set, observes every state the negotiation enters.
	OnState func(State)
}

type session struct {
	state    State
	intent   Intent
	resolved Resolved
	onState  func(State)
}

// advance moves to next if the invariant of next holds, and to StateFailed otherwise.
func (s *session) advance(next State) error {
	if next != s.state+1 {
		s.fail()
		return fmt.Errorf("illegal transition %s -> %s", s.state, next)
	}
	if err := s.check(next); err != nil {
		s.fail()
		return err
	}
	s.enter(next)
	return nil
}

func (s *session) fail() {
	if s.state != StateFailed {
		s.enter(StateFailed)
	}
}

func (s *session) enter(state State) {
	s.state = state
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *session) check(next State) error {
	r := s.resolved
	if next >= StatePrepared && r.AppPrefix == "" {
		return fmt.Errorf("%w: app prefix", ErrMissingParams)
	}
	if next >= StateKeyConfirmed && (r.Key == "" || r.APIURL == "" || r.DeployURL == "") {
		return ErrKeyUnavailable
	}
	if next >= StateParamsConfirmed {
		if len(r.Regions) == 0 {
			return fmt.Errorf("%w: regions", ErrMissingParams)
		}
		for _, region := range r.Regions {
			if strings.TrimSpace(region) == "" {
				return fmt.Errorf("%w: empty region", ErrMissingParams)
			}
		}
		if r.Envs == nil {
			return fmt.Errorf("%w: envs not validated", ErrInvalidEnv)
		}
	}
	if next >= StateDone && r.AppName == "" {
		return fmt.Errorf("%w: app name", ErrMissingParams)
	}
	return nil
}

// Negotiate prepares the deployment, confirms the key and collects regions and
// envs. Nothing is sent to the control plane when validation fails up front.
func (e *Engine) Negotiate(ctx context.Context, in Intent) (Resolved, error) {
	s := &session{intent: in, onState: e.OnState}
	s.resolved.AppName = in.AppName

	if !in.Interactive && in.Key == "" {
		s.fail()
		return Resolved{}, ErrKeyRequired
	}
	if !in.Interactive {
		if _, err := ParseEnvs(in.Envs); err != nil {
			s.fail()
			return Resolved{}, err
		}
	}

	resp, err := e.Client.PrepareDeploy(ctx, in.AppName, in.Key, in.FrontendHostname)
	if err != nil {
		s.fail()
		return Resolved{}, fmt.Errorf("unable to prepare deployment: %w", err)
	}
	s.resolved.AppPrefix = resp.AppPrefix
	if err := s.advance(StatePrepared); err != nil {
		return Resolved{}, err
	}

	if err := e.confirmKey(ctx, s, resp.Reply); err != nil {
		s.fail()
		return Resolved{}, err
	}
	if err := s.advance(StateKeyConfirmed); err != nil {
		return Resolved{}, err
	}
	e.logger().Debug("key confirmed", zap.String("key", s.resolved.Key), zap.Bool("overwrite", s.resolved.Overwrite))

	if err := e.confirmParams(s); err != nil {
		s.fail()
		return Resolved{}, err
	}
	if err := s.advance(StateParamsConfirmed); err != nil {
		return Resolved{}, err
	}
	if err := s.advance(StateDone); err != nil {
		return Resolved{}, err
	}
	return s.resolved, nil
}

func (e *Engine) confirmKey(ctx context.Context, s *session, reply hosting.PrepareReply) error {
	if !s.intent.Interactive {
		confirmed, ok := reply.(hosting.Confirmed)
		if !ok {
			return fmt.Errorf("%w: unable to deploy at this name %s", ErrKeyUnavailable, s.intent.Key)
		}
		s.setEndpoint(hosting.Endpoint(confirmed))
		return nil
	}

	switch r := reply.(type) {
	case hosting.Confirmed:
		s.setEndpoint(hosting.Endpoint(r))
		return nil
	case hosting.Existing:
		if len(r.Deployments) == 0 {
			return ErrKeyUnavailable
		}
		existing := r.Deployments[0]
		e.notify(fmt.Sprintf("Overwrite deployment [ %s ] ...", existing.Key))
		s.setEndpoint(existing)
		s.resolved.Overwrite = true
		return nil
	case hosting.Suggestion:
		return e.pickKey(ctx, s, r.Key)
	default:
		return fmt.Errorf("%w: unexpected prepare reply %T", ErrKeyUnavailable, reply)
	}
}

// pickKey asks for a name, defaulting to the control plane's suggestion, until
// a prepare call confirms exactly that name.
func (e *Engine) pickKey(ctx context.Context, s *session, suggested string) error {
	for attempt := 1; attempt <= e.maxKeyAttempts(); attempt++ {
		answer, err := e.Prompter.Input("Name of deployment", suggested)
		if err != nil {
			return err
		}
		key := strings.TrimSpace(answer)
		if key == "" {
			return ErrAborted
		}

		resp, err := e.Client.PrepareDeploy(ctx, s.intent.AppName, key, s.intent.FrontendHostname)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger().Debug("prepare with chosen key", zap.String("key", key), zap.Error(err))
		} else if confirmed, ok := resp.Reply.(hosting.Confirmed); ok && confirmed.Key == key {
			s.setEndpoint(hosting.Endpoint(confirmed))
			if resp.AppPrefix != "" {
				s.resolved.AppPrefix = resp.AppPrefix
			}
			return nil
		} else if next, ok := resp.Reply.(hosting.Suggestion); ok && next.Key != "" {
			suggested = next.Key
		}
		e.notify("Cannot deploy at this name, try picking a different name")
	}
	return fmt.Errorf("%w after %d attempts", ErrKeyUnavailable, e.maxKeyAttempts())
}

func (e *Engine) confirmParams(s *session) error {
	in := s.intent
	regions := append([]string(nil), in.Regions...)
	entries := append([]string(nil), in.Envs...)

	if in.Interactive {
		def := DefaultRegion
		if len(regions) > 0 {
			def = regions[0]
		}
		answer, err := e.Prompter.Input("Region to deploy to", def)
		if err != nil {
			return err
		}
		if region := strings.TrimSpace(answer); region != "" {
			if len(regions) == 0 {
				regions = []string{region}
			} else {
				regions[0] = region
			}
		}

		more, err := e.promptEnvs()
		if err != nil {
			return err
		}
		entries = append(entries, more...)
	}

	for _, region := range regions {
		if hint := SuggestRegion(region); hint != "" {
			e.notify(fmt.Sprintf("Region %q is not a known region. Did you mean %q?", region, hint))
		}
	}

	envs, err := ParseEnvs(entries)
	if err != nil {
		return err
	}
	s.resolved.Regions = regions
	s.resolved.Envs = envs
	return nil
}

func (e *Engine) promptEnvs() ([]string, error) {
	var entries []string
	title := "  Env name (enter to skip)"
	e.notify("Environment variables ...")
	for {
		name, err := e.Prompter.Input(title, "")
		if err != nil {
			return nil, err
		}
		title = "  env name (enter to finish)"
		name = strings.TrimSpace(name)
		if name == "" {
			break
		}
		value, err := e.Prompter.Input("  env value", "")
		if err != nil {
			return nil, err
		}
		entries = append(entries, name+"="+value)
	}
	if len(entries) > 0 {
		e.notify("Finished adding envs.")
	} else {
		e.notify("No envs added. Continuing ...")
	}
	return entries, nil
}

func (s *session) setEndpoint(ep hosting.Endpoint) {
	s.resolved.Key = ep.Key
	s.resolved.APIURL = ep.APIURL
	s.resolved.DeployURL = ep.DeployURL
}

func (e *Engine) notify(msg string) {
	if e.Notify != nil {
		e.Notify(msg)
	}
}

func (e *Engine) maxKeyAttempts() int {
	if e.MaxKeyAttempts <= 0 {
		return DefaultMaxKeyAttempts
	}
	return e.MaxKeyAttempts
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
