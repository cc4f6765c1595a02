package services

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

var ErrSessionActive = errors.New("interview already has an active session")

// SessionRegistry tracks the live controller of each interview and ends
// sessions nobody has touched for longer than the idle timeout.
type SessionRegistry struct {
	idleTimeout time.Duration
	metrics     *Metrics

	mutex    sync.RWMutex
	sessions map[string]*SessionController

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSessionRegistry(idleTimeout, sweepInterval time.Duration, metrics *Metrics) *SessionRegistry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	r := &SessionRegistry{
		idleTimeout: idleTimeout,
		metrics:     metrics,
		sessions:    make(map[string]*SessionController),
		stop:        make(chan struct{}),
	}
	go r.startSweeper(sweepInterval)
	return r
}

// Register adds ctrl under its interview id. A second live session for the
// same interview is refused.
func (r *SessionRegistry) Register(ctrl *SessionController) error {
	id := ctrl.InterviewID()

	r.mutex.Lock()
	if existing, ok := r.sessions[id]; ok && !isDone(existing) {
		r.mutex.Unlock()
		return ErrSessionActive
	}
	r.sessions[id] = ctrl
	r.metrics.setActiveSessions(len(r.sessions))
	r.mutex.Unlock()

	go func() {
		<-ctrl.Done()
		r.forget(id, ctrl)
	}()

	slog.Info("Session registered", "interview_id", id)
	return nil
}

func (r *SessionRegistry) Get(interviewID string) *SessionController {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.sessions[interviewID]
}

func (r *SessionRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.sessions)
}

// Remove closes the session of an interview without completing it.
func (r *SessionRegistry) Remove(interviewID string) {
	r.mutex.Lock()
	ctrl, ok := r.sessions[interviewID]
	if ok {
		delete(r.sessions, interviewID)
		r.metrics.setActiveSessions(len(r.sessions))
	}
	r.mutex.Unlock()

	if ok {
		ctrl.Close()
		slog.Info("Session removed", "interview_id", interviewID)
	}
}

// Shutdown stops the sweeper and closes every tracked session.
func (r *SessionRegistry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mutex.Lock()
	sessions := make([]*SessionController, 0, len(r.sessions))
	for id, ctrl := range r.sessions {
		sessions = append(sessions, ctrl)
		delete(r.sessions, id)
	}
	r.metrics.setActiveSessions(0)
	r.mutex.Unlock()

	for _, ctrl := range sessions {
		ctrl.Close()
	}
}

func (r *SessionRegistry) forget(id string, ctrl *SessionController) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.sessions[id] == ctrl {
		delete(r.sessions, id)
		r.metrics.setActiveSessions(len(r.sessions))
		slog.Debug("Session finished and removed", "interview_id", id)
	}
}

func (r *SessionRegistry) startSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

// sweep ends idle sessions that were started and closes idle ones that never were.
func (r *SessionRegistry) sweep(now time.Time) {
	r.mutex.RLock()
	var idle []*SessionController
	for _, ctrl := range r.sessions {
		if now.Sub(ctrl.LastActivity()) > r.idleTimeout {
			idle = append(idle, ctrl)
		}
	}
	r.mutex.RUnlock()

	for _, ctrl := range idle {
		slog.Info("Session idle, ending",
			"interview_id", ctrl.InterviewID(),
			"inactive_duration", now.Sub(ctrl.LastActivity()))

		switch ctrl.Snapshot().State {
		case StateActive, StatePaused:
			go func(c *SessionController) {
				if err := c.End(EndTimeout); err != nil {
					slog.Error("Failed to end idle session", "error", err, "interview_id", c.InterviewID())
				}
			}(ctrl)
		default:
			r.Remove(ctrl.InterviewID())
		}
	}
}

func isDone(ctrl *SessionController) bool {
	select {
	case <-ctrl.Done():
		return true
	default:
		return false
	}
}
