// Service lifecycle control over the host init system: the reverse proxy and
// the product's own services (bot, webapp) are started, stopped and verified
// through here.
package services

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/function61/gokit/logex"
)

// Runner issues a single process-control command and returns its combined
// output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func SystemdRunner() Runner {
	return execRunner{}
}

// Service controls one named unit. It also serves as the provisioner's
// reverse proxy controller.
type Service struct {
	name   string
	runner Runner
	logl   *logex.Leveled
}

func NewService(name string, runner Runner, logger *log.Logger) *Service {
	return &Service{
		name:   name,
		runner: runner,
		logl:   logex.Levels(logger),
	}
}

func (s *Service) Name() string { return s.name }

func (s *Service) Start(ctx context.Context) error {
	return s.control(ctx, "start")
}

func (s *Service) Stop(ctx context.Context) error {
	return s.control(ctx, "stop")
}

func (s *Service) Restart(ctx context.Context) error {
	return s.control(ctx, "restart")
}

func (s *Service) IsActive(ctx context.Context) bool {
	// "systemctl is-active" exits non-zero for every non-active state, so the
	// error itself is not interesting
	out, _ := s.runner.Run(ctx, "systemctl", "is-active", s.name)
	return out == "active"
}

func (s *Service) control(ctx context.Context, verb string) error {
	s.logl.Info.Printf("%s %s", verb, s.name)

	if out, err := s.runner.Run(ctx, "systemctl", verb, s.name); err != nil {
		return fmt.Errorf("systemctl %s %s: %w (%s)", verb, s.name, err, out)
	}

	return nil
}

type ServiceStatus struct {
	Name   string
	Active bool
}

// Manager drives the product's whole set of services for the start/stop/
// update flows.
type Manager struct {
	services []*Service
	logl     *logex.Leveled
}

func NewManager(names []string, runner Runner, logger *log.Logger) *Manager {
	services := []*Service{}
	for _, name := range names {
		services = append(services, NewService(name, runner, logger))
	}

	return &Manager{
		services: services,
		logl:     logex.Levels(logger),
	}
}

func (m *Manager) StartAll(ctx context.Context) error {
	return m.each(ctx, (*Service).Start)
}

func (m *Manager) StopAll(ctx context.Context) error {
	return m.each(ctx, (*Service).Stop)
}

func (m *Manager) RestartAll(ctx context.Context) error {
	return m.each(ctx, (*Service).Restart)
}

func (m *Manager) Status(ctx context.Context) []ServiceStatus {
	statuses := []ServiceStatus{}
	for _, service := range m.services {
		statuses = append(statuses, ServiceStatus{
			Name:   service.Name(),
			Active: service.IsActive(ctx),
		})
	}

	return statuses
}

// PostUpdate restarts every service and then verifies each one came back up.
// The returned statuses carry the per-service verdict even when the overall
// result is an error.
func (m *Manager) PostUpdate(ctx context.Context) ([]ServiceStatus, error) {
	for _, service := range m.services {
		if err := service.Restart(ctx); err != nil {
			m.logl.Error.Printf("restart %s: %v", service.Name(), err)
		}
	}

	statuses := m.Status(ctx)

	failed := []string{}
	for _, status := range statuses {
		if !status.Active {
			failed = append(failed, status.Name)
		}
	}

	if len(failed) > 0 {
		return statuses, fmt.Errorf("services not active after update: %s", strings.Join(failed, ", "))
	}

	return statuses, nil
}

func (m *Manager) each(ctx context.Context, op func(*Service, context.Context) error) error {
	for _, service := range m.services {
		if err := op(service, ctx); err != nil {
			return err
		}
	}

	return nil
}
