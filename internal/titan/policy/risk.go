package policy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// AcceptPhrase is the exact phrase an operator must supply to EnableYolo.
// It is deliberately loud and deliberately not abbreviated anywhere in
// this codebase, so a grep for it always finds every call site.
const AcceptPhrase = "I_ACCEPT_UNBOUNDED_AUTONOMY"

// ArmTokenTTL is how long an arm token remains valid before EnableYolo
// must be called or the arm is wasted.
const ArmTokenTTL = 60 * time.Second

// DefaultYoloSessionTTL is used when EnableYolo's caller does not request
// a specific session length.
const DefaultYoloSessionTTL = 15 * time.Minute

// RiskController wraps the store's risk-state operations with the
// higher-level rules: arm requires a freshly generated single-use token,
// enabling requires that token plus the exact accept phrase, and risk
// mode is never settable to yolo by any other path.
type RiskController struct {
	st *store.Store
}

// NewRiskController returns a controller backed by st.
func NewRiskController(st *store.Store) *RiskController {
	return &RiskController{st: st}
}

// ArmYolo generates a single-use token and records it with a short TTL.
// It must be invoked from the CLI only — the gateway has no path to this
// method, matching the "CLI-only enablement" rule.
func (r *RiskController) ArmYolo(operator string) (token string, expiresAtMS int64, err error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", 0, fmt.Errorf("policy: generate arm token: %w", err)
	}
	token = hex.EncodeToString(raw)
	now := time.Now()
	expiresAtMS = now.Add(ArmTokenTTL).UnixMilli()

	if err := r.st.ArmYolo(token, now.UnixMilli(), expiresAtMS, operator); err != nil {
		return "", 0, err
	}
	return token, expiresAtMS, nil
}

// EnableYolo consumes an armed token and switches risk mode to yolo for
// ttl, but only if phrase exactly matches AcceptPhrase AND token matches
// the one currently armed. A near-miss phrase is treated the same as a
// wrong token: the arm is not consumed, so the operator can simply retry.
// A zero ttl falls back to DefaultYoloSessionTTL.
func (r *RiskController) EnableYolo(token, phrase, operator string, ttl time.Duration) error {
	if phrase != AcceptPhrase {
		return fmt.Errorf("policy: accept phrase does not match required phrase exactly")
	}
	if ttl <= 0 {
		ttl = DefaultYoloSessionTTL
	}
	now := time.Now()
	expiresAtMS := now.Add(ttl).UnixMilli()
	return r.st.EnableYolo(token, now.UnixMilli(), expiresAtMS, operator)
}

// DropToSecure forces risk mode back to secure immediately, clearing any
// yolo arm or expiry.
func (r *RiskController) DropToSecure(operator string) error {
	return r.st.SetRiskMode(store.RiskSecure, operator)
}

// Current returns the live risk state, after sweeping any expired yolo
// session back to secure.
func (r *RiskController) Current() (*store.RuntimeRiskState, error) {
	return r.st.GetRiskState()
}

// SweepExpired is the background ticker's entry point; it is also safe
// to call inline before any risk-sensitive read.
func (r *RiskController) SweepExpired() error {
	return r.st.ApplyYoloExpiry()
}
