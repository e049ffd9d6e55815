package model

// State represents the orchestrator lifecycle state.
type State string

// All orchestrator states.
const (
	StateIdle         State = "IDLE"
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StatePaused       State = "PAUSED"
	StateStopped      State = "STOPPED"
	StateError        State = "ERROR"
)

// String returns the string representation of a State.
func (s State) String() string {
	return string(s)
}

// CanStart reports whether a mining session may be started from this state.
func (s State) CanStart() bool {
	return s == StateIdle || s == StateStopped || s == StateError
}

// Event represents an engine event type for notification filtering and logging.
type Event string

// All supported engine events.
const (
	EventMinerStart   Event = "MINER_START"
	EventMinerStop    Event = "MINER_STOP"
	EventMinerError   Event = "MINER_ERROR"
	EventCampaignNew  Event = "CAMPAIGN_NEW"
	EventDropClaim    Event = "DROP_CLAIM"
	EventDropProgress Event = "DROP_PROGRESS"
	EventWatchStart   Event = "WATCH_START"
	EventWatchStop    Event = "WATCH_STOP"
	EventChatMention  Event = "CHAT_MENTION"
	EventAuthRefresh  Event = "AUTH_REFRESH"
	EventTest         Event = "TEST"
)

// AllEvents returns a slice of all defined events.
func AllEvents() []Event {
	return []Event{
		EventMinerStart,
		EventMinerStop,
		EventMinerError,
		EventCampaignNew,
		EventDropClaim,
		EventDropProgress,
		EventWatchStart,
		EventWatchStop,
		EventChatMention,
		EventAuthRefresh,
		EventTest,
	}
}

// String returns the string representation of an Event.
func (e Event) String() string {
	return string(e)
}

// ParseEvent converts a string to an Event. Returns empty string if invalid.
func ParseEvent(s string) Event {
	for _, e := range AllEvents() {
		if string(e) == s {
			return e
		}
	}
	return ""
}

// StatusChange is the payload delivered to status-change subscribers.
type StatusChange struct {
	State State  `json:"state"`
	Err   string `json:"error,omitempty"`
}
