// Package services restarts slurm daemons through systemd's D-Bus API.
package services

import (
	"context"
	"errors"
	"fmt"
	"os/user"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-systemd/v22/dbus"
)

var (
	ErrServiceNotFound = errors.New("no service found")
	ErrServiceRestart  = errors.New("service restart failed")
)

const defaultTimeout = 30

type ServiceManager struct {
	Conn    *dbus.Conn
	isRoot  bool
	timeout int
}

type Service struct {
	Name    string
	State   string // active, reloading, inactive, failed, activating, deactivating
	Enabled bool
}

func (s Service) Active() bool {
	return s.State == "active"
}

func (s *Service) fillFromProperties(props map[string]interface{}) {
	jobState, _ := props["ActiveState"].(string)
	fileState, _ := props["UnitFileState"].(string)
	s.State = jobState
	s.Enabled = (fileState == "enabled" || fileState == "static")
}

type ServicesConfig struct {
	Timeout int
}

func NewServices(ctx context.Context, cfg *ServicesConfig) (*ServiceManager, error) {
	var sm ServiceManager
	var err error
	sm.timeout = defaultTimeout
	if cfg != nil && cfg.Timeout > 0 {
		sm.timeout = cfg.Timeout
	}
	currentUser, err := user.Current()
	if err != nil {
		return nil, err
	}

	if currentUser.Username != "root" {
		sm.Conn, err = dbus.NewUserConnectionContext(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		sm.isRoot = true
		sm.Conn, err = dbus.NewSystemConnectionContext(ctx)
		if err != nil {
			return nil, err
		}
	}
	return &sm, nil
}

// Restart issues a synchronous restart of the named unit: it returns once
// systemd reports the restart job finished. It does not wait for the new
// process to become healthy.
func (s *ServiceManager) Restart(ctx context.Context, name string) error {
	if _, err := s.Get(ctx, name); err != nil {
		return err
	}
	log.Info("restarting service", "unit", name)
	callback := make(chan string)
	if _, err := s.Conn.RestartUnitContext(ctx, name, "fail", callback); err != nil {
		return fmt.Errorf("%w: %v", ErrServiceRestart, err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while restarting %v", name)
	case result := <-callback:
		if result != "done" {
			return fmt.Errorf("%w: unit %v restart finished in state %v", ErrServiceRestart, name, result)
		}
		log.Debug("restarted unit", "unit", name)
		return nil
	case <-time.After(time.Duration(s.timeout) * time.Second):
		return fmt.Errorf("%w: timeout restarting %v", ErrServiceRestart, name)
	}
}

func (s *ServiceManager) Start(ctx context.Context, name string) error {
	return s.applyJob(ctx, name, "start")
}

func (s *ServiceManager) Stop(ctx context.Context, name string) error {
	return s.applyJob(ctx, name, "stop")
}

func (s *ServiceManager) applyJob(ctx context.Context, name, job string) error {
	callback := make(chan string)
	var err error
	switch job {
	case "start":
		_, err = s.Conn.StartUnitContext(ctx, name, "fail", callback)
	case "stop":
		_, err = s.Conn.StopUnitContext(ctx, name, "fail", callback)
	default:
		panic(fmt.Sprintf("unexpected services job: %#v", job))
	}
	if err != nil {
		return fmt.Errorf("error applying service change: %w", err)
	}
	select {
	case <-ctx.Done():
		return errors.New("context cancelled while waiting for service")
	case <-callback:
		return nil
	case <-time.After(time.Duration(s.timeout) * time.Second):
		return fmt.Errorf("timeout modifying unit %v", name)
	}
}

func (s *ServiceManager) Enable(ctx context.Context, name string) error {
	_, _, err := s.Conn.EnableUnitFilesContext(ctx, []string{name}, false, false)
	if err != nil {
		return fmt.Errorf("cannot enable unit %v: %w", name, err)
	}
	return nil
}

// DaemonReload asks systemd to re-read unit files after drop-ins change.
func (s *ServiceManager) DaemonReload(ctx context.Context) error {
	return s.Conn.ReloadContext(ctx)
}

func (s *ServiceManager) Get(ctx context.Context, name string) (*Service, error) {
	if name == "" {
		return nil, errors.New("empty service name")
	}
	us, err := s.Conn.ListUnitsByNamesContext(ctx, []string{name})
	if err != nil {
		return nil, fmt.Errorf("couldn't list units: %w", err)
	}
	if len(us) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, name)
	}
	props, err := s.Conn.GetAllPropertiesContext(ctx, name)
	if err != nil {
		return nil, err
	}
	result := &Service{Name: name}
	result.fillFromProperties(props)
	return result, nil
}

// WaitUntilState polls until the unit reaches state or the timeout passes.
func (s *ServiceManager) WaitUntilState(ctx context.Context, name string, state string) error {
	current, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if current.State == state {
		return nil
	}
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	timeoutTimer := time.NewTimer(time.Duration(s.timeout) * time.Second)
	defer timeoutTimer.Stop()
	log.Debug("waiting for service to update", "service", name, "state", state, "timeout", s.timeout)
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled while waiting for service %v to reach state %v", name, state)
		case <-timeoutTimer.C:
			return fmt.Errorf("service %v did not reach state %v", name, state)
		case <-ticker.C:
			props, err := s.Conn.GetAllPropertiesContext(ctx, name)
			if err != nil {
				return err
			}
			activeState := props["ActiveState"]
			if activeState == state {
				return nil
			}
			if activeState == "failed" {
				return fmt.Errorf("service %v in failed state", name)
			}
		}
	}
}

func (s *ServiceManager) Close() {
	s.Conn.Close()
}
