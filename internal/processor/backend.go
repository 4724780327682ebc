package processor

import (
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/autonote/internal/notebook"
)

// Mode is the configured note storage mode.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

const BackendNone = "none"

// StoreFactory constructs a notebook store. A nil factory means the backend
// is not configured; an error means it is configured but unusable.
type StoreFactory func() (notebook.Store, error)

// Selection is the outcome of ChooseBackend.
type Selection struct {
	Store notebook.Store
	// Backend is "remote", "local" or "none".
	Backend string
	// Downgraded is set when auto mode fell back from remote to local.
	Downgraded bool
	Reason     string
}

// ChooseBackend picks the single active note store:
//
//	remote: remote if it can be built, otherwise none
//	local:  local
//	auto:   remote if it can be built, otherwise local
//
// Unknown modes are treated as auto.
func ChooseBackend(mode Mode, remote, local StoreFactory, logger *slog.Logger) Selection {
	mode = Mode(strings.ToLower(string(mode)))
	switch mode {
	case ModeRemote, ModeLocal, ModeAuto:
	default:
		logger.Warn("unknown note storage mode, using auto", "mode", mode)
		mode = ModeAuto
	}

	if mode == ModeLocal {
		return buildLocal(local, logger, false, "")
	}

	store, reason := buildRemote(remote)
	if store != nil {
		logger.Info("note backend selected", "backend", store.Name(), "mode", mode)
		return Selection{Store: store, Backend: store.Name()}
	}

	if mode == ModeRemote {
		logger.Warn("remote note backend unavailable, note creation disabled", "reason", reason)
		return Selection{Backend: BackendNone, Reason: reason}
	}

	logger.Warn("remote note backend unavailable, falling back to local notes", "reason", reason)
	return buildLocal(local, logger, true, reason)
}

func buildRemote(remote StoreFactory) (notebook.Store, string) {
	if remote == nil {
		return nil, "remote backend not credentialed"
	}
	store, err := remote()
	if err != nil {
		return nil, err.Error()
	}
	return store, ""
}

func buildLocal(local StoreFactory, logger *slog.Logger, downgraded bool, reason string) Selection {
	if local == nil {
		logger.Warn("local note backend not configured, note creation disabled")
		return Selection{Backend: BackendNone, Reason: "local backend not configured"}
	}
	store, err := local()
	if err != nil {
		logger.Error("local note backend unavailable, note creation disabled", "error", err)
		return Selection{Backend: BackendNone, Reason: err.Error()}
	}
	logger.Info("note backend selected", "backend", store.Name(), "downgraded", downgraded)
	return Selection{Store: store, Backend: store.Name(), Downgraded: downgraded, Reason: reason}
}
