// Package chat owns the consent-gated conversation lifecycle: preferences, current-session
// resolution, ephemeral buffering and the one-time migration into durable storage.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/enoki/backend/internal/metrics"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

var (
	ErrIdentityRequired = errors.New("identity is required")
	ErrConsentForbidden = errors.New("anonymous identities cannot grant storage consent")
	ErrInvalidTone      = errors.New("unknown tone")
	ErrInvalidLanguage  = errors.New("language code is too long")
	ErrSessionNotFound  = store.ErrSessionNotFound
	ErrOwnership        = store.ErrNotOwner
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	titleLength         = 50
	previewLength       = 100
)

// Config tunes the service.
type Config struct {
	AnonConsentAllowed bool
	HistoryWindow      int
}

// Service encapsulates conversation state management. It is safe for concurrent use.
type Service struct {
	store  *store.Store
	buffer *store.Buffer
	cfg    Config
	locks  *keyedMutex
	now    func() time.Time
}

// NewService wires the durable store and the ephemeral buffer.
func NewService(st *store.Store, buffer *store.Buffer, cfg Config) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	return &Service{store: st, buffer: buffer, cfg: cfg, locks: newKeyedMutex(), now: time.Now}
}

// Lock serializes read-modify-write work for one identity. Conversation and Record expect
// the caller to hold it.
func (s *Service) Lock(id chat.Identity) func() {
	return s.locks.lock(id.Owner())
}

// PreferenceUpdate carries optional changes; nil fields are left alone.
type PreferenceUpdate struct {
	Tone     *string
	Language *string
	Consent  *bool
}

// Empty reports whether the update changes nothing.
func (u PreferenceUpdate) Empty() bool {
	return u.Tone == nil && u.Language == nil && u.Consent == nil
}

// Migration describes a completed ephemeral-to-durable copy.
type Migration struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
}

// ConsentStatus is the consent view returned to callers.
type ConsentStatus struct {
	Granted               bool       `json:"consent_status"`
	Timestamp             *time.Time `json:"consent_timestamp"`
	Version               string     `json:"consent_version"`
	HasEphemeralData      bool       `json:"has_ephemeral_data"`
	EphemeralMessageCount int        `json:"ephemeral_message_count"`
}

// Preferences returns the identity's preferences, defaults when none are stored.
func (s *Service) Preferences(ctx context.Context, id chat.Identity) (chat.Preferences, error) {
	if !id.Valid() {
		return chat.Preferences{}, ErrIdentityRequired
	}
	prefs, _, err := s.store.GetPreferences(ctx, id.Owner())
	return prefs, err
}

// UpdatePreferences applies tone, language and consent changes. Granting consent migrates
// the ephemeral buffer; revoking it clears the buffer.
func (s *Service) UpdatePreferences(ctx context.Context, id chat.Identity, upd PreferenceUpdate) (chat.Preferences, *Migration, error) {
	if !id.Valid() {
		return chat.Preferences{}, nil, ErrIdentityRequired
	}
	unlock := s.Lock(id)
	defer unlock()

	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return chat.Preferences{}, nil, err
	}

	if upd.Tone != nil {
		raw := strings.TrimSpace(*upd.Tone)
		if utf8.RuneCountInString(raw) > chat.MaxToneLength {
			return chat.Preferences{}, nil, fmt.Errorf("%w: %q", ErrInvalidTone, raw)
		}
		tone, ok := chat.ParseTone(raw)
		if !ok {
			log.Printf("[chat] unknown tone %q for %s, using %s", raw, id, tone)
		}
		prefs.Tone = tone
	}
	if upd.Language != nil {
		if utf8.RuneCountInString(strings.TrimSpace(*upd.Language)) > chat.MaxLanguageLength {
			return chat.Preferences{}, nil, ErrInvalidLanguage
		}
		prefs.SetLanguage(*upd.Language)
	}

	if upd.Consent == nil || *upd.Consent == prefs.Consent {
		if err := s.store.PutPreferences(ctx, prefs); err != nil {
			return chat.Preferences{}, nil, err
		}
		return prefs, nil, nil
	}

	now := s.now().UTC()
	if !*upd.Consent {
		prefs.Consent = false
		prefs.ConsentAt = &now
		if err := s.store.PutPreferences(ctx, prefs); err != nil {
			return chat.Preferences{}, nil, err
		}
		s.buffer.Clear(id.Owner())
		log.Printf("[audit] consent revoked owner=%s", id.Owner())
		return prefs, nil, nil
	}

	if !id.Authenticated() && !s.cfg.AnonConsentAllowed {
		log.Printf("[audit] anonymous consent grant rejected owner=%s", id.Owner())
		return chat.Preferences{}, nil, ErrConsentForbidden
	}
	prefs.Consent = true
	prefs.ConsentAt = &now
	migration, err := s.grant(ctx, &prefs)
	if err != nil {
		return chat.Preferences{}, nil, err
	}
	log.Printf("[audit] consent granted owner=%s", id.Owner())
	return prefs, migration, nil
}

// grant persists consent and, when the buffer holds turns, migrates them in the same
// transaction before clearing the buffer.
func (s *Service) grant(ctx context.Context, prefs *chat.Preferences) (*Migration, error) {
	owner := prefs.Owner
	turns := s.buffer.Snapshot(owner)
	if len(turns) == 0 {
		return nil, s.store.PutPreferences(ctx, *prefs)
	}

	sess, fresh, err := s.resolveSession(ctx, prefs)
	if err != nil {
		return nil, err
	}
	var pending *chat.Session
	if fresh {
		pending = &sess
	}
	if _, err := s.store.Migrate(ctx, *prefs, sess.ID, turns, pending); err != nil {
		return nil, err
	}
	s.buffer.Clear(owner)
	metrics.RecordMigration()
	return &Migration{SessionID: sess.ID, Turns: len(turns)}, nil
}

// SetConsent is UpdatePreferences for consent only.
func (s *Service) SetConsent(ctx context.Context, id chat.Identity, granted bool) (ConsentStatus, *Migration, error) {
	_, migration, err := s.UpdatePreferences(ctx, id, PreferenceUpdate{Consent: &granted})
	if err != nil {
		return ConsentStatus{}, nil, err
	}
	status, err := s.ConsentStatus(ctx, id)
	return status, migration, err
}

// ConsentStatus reports consent and buffered data.
func (s *Service) ConsentStatus(ctx context.Context, id chat.Identity) (ConsentStatus, error) {
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return ConsentStatus{}, err
	}
	n := s.buffer.Len(id.Owner())
	return ConsentStatus{
		Granted:               prefs.Consent,
		Timestamp:             prefs.ConsentAt,
		Version:               chat.ConsentVersion,
		HasEphemeralData:      n > 0,
		EphemeralMessageCount: n,
	}, nil
}

// resolveSession returns the current session, falling back to the newest owned session and
// finally building a new one. A new session (fresh=true) is not stored yet: the caller
// inserts it in the transaction that writes its first turns. The current pointer is
// updated in prefs (not saved).
func (s *Service) resolveSession(ctx context.Context, prefs *chat.Preferences) (chat.Session, bool, error) {
	owner := prefs.Owner
	if prefs.CurrentSessionID != "" {
		sess, err := s.store.GetSession(ctx, owner, prefs.CurrentSessionID)
		switch {
		case err == nil:
			return sess, false, nil
		case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrNotOwner):
			log.Printf("[chat] current session %s unusable for %s: %v", prefs.CurrentSessionID, owner, err)
		default:
			return chat.Session{}, false, err
		}
	}

	if latest, ok, err := s.store.LatestSession(ctx, owner); err != nil {
		return chat.Session{}, false, err
	} else if ok {
		prefs.CurrentSessionID = latest.ID
		return latest, false, nil
	}

	sess, err := s.store.NewSession(owner)
	if err != nil {
		return chat.Session{}, false, err
	}
	prefs.CurrentSessionID = sess.ID
	return sess, true, nil
}
