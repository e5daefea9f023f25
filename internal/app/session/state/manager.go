package state

import (
	"sync"
	"time"
)

// Info is a snapshot of the service state.
type Info struct {
	InstanceID string    `json:"instance_id"`
	Phase      string    `json:"phase"`
	Accepting  bool      `json:"accepting"`
	BotUser    string    `json:"bot_user,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	ReadyAt    time.Time `json:"ready_at,omitzero"`
}

// Manager manages service state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	instanceID string
	botUser    string

	phase     Phase
	accepting AcceptingState

	startedAt time.Time
	readyAt   time.Time
}

// New creates a new state manager.
func New(instanceID string) *Manager {
	return &Manager{
		instanceID: instanceID,
		phase:      PhaseStarting,
		accepting:  NotAccepting,
		startedAt:  time.Now(),
	}
}

// GetPhase returns the current phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetPhase sets the phase.
func (m *Manager) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = p
}

// MarkReady records the bot identity and starts accepting requests.
func (m *Manager) MarkReady(botUser string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUser = botUser
	m.readyAt = now
	m.phase = PhaseActive
	m.accepting = Accepting
}

// StartAccepting sets the accepting state to Accepting.
func (m *Manager) StartAccepting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepting = Accepting
}

// StopAccepting sets the accepting state to NotAccepting.
func (m *Manager) StopAccepting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepting = NotAccepting
}

// CanAcceptRequests returns true when the service is active and accepting.
func (m *Manager) CanAcceptRequests() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase == PhaseActive && m.accepting == Accepting
}

// GetInstanceID returns the instance ID.
func (m *Manager) GetInstanceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instanceID
}

// BuildInfo creates a snapshot of the service state.
func (m *Manager) BuildInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		InstanceID: m.instanceID,
		Phase:      m.phase.String(),
		Accepting:  m.accepting == Accepting,
		BotUser:    m.botUser,
		StartedAt:  m.startedAt,
		ReadyAt:    m.readyAt,
	}
}
