package emergency

import (
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Detector inspects the tracking signal on an idle tick and reports whether
// an emergency of the returned type should be triggered. No detection
// heuristic ships with this package; motion analysis lives with the camera
// collaborator.
type Detector interface {
	Detect(trackingActive bool) (models.AlertType, bool)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(trackingActive bool) (models.AlertType, bool)

func (f DetectorFunc) Detect(trackingActive bool) (models.AlertType, bool) {
	return f(trackingActive)
}

// OnIdleTick is the passive monitor hook. It only consults the detector
// while the System is idle and tracking is active.
func (s *System) OnIdleTick(trackingActive bool) {
	s.mu.Lock()
	idle := s.state == StateIdle && !s.disposed
	detector := s.opts.Detector
	s.mu.Unlock()

	if !idle || !trackingActive {
		return
	}
	if detector == nil {
		s.logger.Debug("Idle monitor tick, no detector configured")
		return
	}

	if t, ok := detector.Detect(trackingActive); ok {
		s.logger.Warn("Detector reported a potential emergency", zap.String("type", string(t)))
		s.Trigger(t)
	}
}

// StartMonitor calls OnIdleTick with tracking() every MonitorInterval
// until StopMonitor or Dispose. Starting twice is a no-op.
func (s *System) StartMonitor(tracking func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.stopMonitor != nil {
		return
	}
	s.stopMonitor = s.scheduler.Every(s.opts.MonitorInterval, func() {
		s.OnIdleTick(tracking())
	})
}

// StopMonitor stops the idle monitor if it is running.
func (s *System) StopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
}
