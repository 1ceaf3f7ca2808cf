package domain

// SyncState is the state of the synchronizer of an account.
type SyncState int

const (
	SyncStopped SyncState = iota
	SyncStarting
	SyncSyncing
	SyncSynced
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncStopped:
		return "stopped"
	case SyncStarting:
		return "starting"
	case SyncSyncing:
		return "syncing"
	case SyncSynced:
		return "synced"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// IsRunning returns whether a worker is alive in this state.
func (s SyncState) IsRunning() bool {
	return s == SyncStarting || s == SyncSyncing || s == SyncSynced
}

// SyncStatus is what the synchronizer publishes on every state change.
type SyncStatus struct {
	State             SyncState
	LastScannedHeight uint64
	ChainTipHeight    uint64
	// Err is set when State is SyncError.
	Err error
}

// SyncEventType ...
type SyncEventType int

const (
	EventNoteReceived SyncEventType = iota
	EventNoteSpent
	EventReorgDetected
	EventTransactionMined
	EventTransactionExpired
)

func (t SyncEventType) String() string {
	switch t {
	case EventNoteReceived:
		return "NoteReceived"
	case EventNoteSpent:
		return "NoteSpent"
	case EventReorgDetected:
		return "ReorgDetected"
	case EventTransactionMined:
		return "TransactionMined"
	case EventTransactionExpired:
		return "TransactionExpired"
	default:
		return "Unknown"
	}
}

// SyncEvent is emitted by the synchronizer in the order things happen on
// chain. Only the fields relevant to the event type are set.
type SyncEvent struct {
	Type         SyncEventType
	Height       uint64
	Value        uint64
	Nullifier    string
	TxID         string
	RewindHeight uint64
}
