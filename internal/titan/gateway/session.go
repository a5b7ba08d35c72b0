package gateway

import (
	"strings"

	"github.com/antigravity-dev/titan/internal/titan/config"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

// dropReason returns a non-empty reason when ev must be dropped before
// any planning happens — an allowlist miss or an activation-mode mismatch
// — or "" when the event should proceed. Grounded on the teacher's
// IsRoomAllowed/IsSenderAllowed pair (internal/gitai/policy/engine.go):
// an allowlist match is checked only when the list is non-empty, since an
// unconfigured allowlist means "allow everyone" rather than "allow no
// one".
func (r *Runtime) dropReason(sess *store.Session, ev Event) string {
	if allow := r.cfg.Chat.Allowlist; len(allow) > 0 && !matchesAllowlist(allow, ev.ActorID) {
		return "actor not in allowlist"
	}

	switch r.effectiveActivation(sess) {
	case config.ActivationMention:
		if !strings.Contains(ev.Text, "@titan") && !strings.HasPrefix(strings.TrimSpace(ev.Text), "/") {
			return "activation mode requires a mention"
		}
	case config.ActivationAlways, "":
		// fall through: always react
	}

	if sess.StopRequested {
		return "session is stopped, send /new to resume"
	}

	return ""
}

// effectiveActivation resolves the activation mode that governs sess.
// store.Session.ActivationMode is always populated (GetOrCreateSession
// seeds it to ActivationAlways, matching config.ChatConfig's own
// documented default), so the session's own field is authoritative;
// config.ChatConfig.ActivationMode is consulted only when sess carries an
// empty activation mode.
func (r *Runtime) effectiveActivation(sess *store.Session) config.ActivationMode {
	if sess.ActivationMode == "" {
		return r.cfg.Chat.ActivationMode
	}
	return config.ActivationMode(sess.ActivationMode)
}

// effectiveMode resolves the autonomy mode governing sess: a session-level
// /mode override when set, else the process-wide configured default.
func (r *Runtime) effectiveMode(sess *store.Session) config.Mode {
	if sess.ModeOverride == "" {
		return r.cfg.Mode
	}
	return config.Mode(sess.ModeOverride)
}

// matchesAllowlist reports whether value matches list, where "*" matches
// anything. Grounded verbatim on the teacher's matchesAny
// (internal/gitai/policy/engine.go).
func matchesAllowlist(list []string, value string) bool {
	for _, entry := range list {
		if entry == "*" || strings.EqualFold(entry, value) {
			return true
		}
	}
	return false
}
