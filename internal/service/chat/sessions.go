package chat

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

// SessionOverview is one entry of the session list.
type SessionOverview struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsCurrent    bool      `json:"is_current"`
}

// SessionDetail is a session with its turns.
type SessionDetail struct {
	SessionOverview
	Summary string          `json:"summary"`
	Memory  chat.Memory     `json:"memory"`
	Turns   chat.Transcript `json:"messages"`
}

// ContextView is what the companion currently knows about the identity.
type ContextView struct {
	Consent     bool             `json:"consent"`
	Preferences chat.Preferences `json:"preferences"`
	SessionID   string           `json:"session_id,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Memory      *chat.Memory     `json:"memory,omitempty"`
	Ephemeral   chat.Transcript  `json:"ephemeral_history,omitempty"`
}

// NewSession starts a fresh conversation. Without consent it clears the ephemeral buffer
// instead and returns nil.
func (s *Service) NewSession(ctx context.Context, id chat.Identity) (*chat.Session, error) {
	if !id.Valid() {
		return nil, ErrIdentityRequired
	}
	unlock := s.Lock(id)
	defer unlock()

	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prefs.Consent {
		s.buffer.Clear(id.Owner())
		return nil, nil
	}

	sess, err := s.store.CreateSession(ctx, id.Owner())
	if err != nil {
		return nil, err
	}
	prefs.CurrentSessionID = sess.ID
	if err := s.store.PutPreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns the identity's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, id chat.Identity) ([]SessionOverview, error) {
	if !id.Valid() {
		return nil, ErrIdentityRequired
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, id.Owner())
	if err != nil {
		return nil, err
	}

	out := make([]SessionOverview, 0, len(sessions))
	for _, sess := range sessions {
		turns, err := s.store.LoadTurns(ctx, id.Owner(), sess.ID, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, overview(sess, turns, prefs.CurrentSessionID))
	}
	return out, nil
}

// SessionDetail returns one owned session with its turns.
func (s *Service) SessionDetail(ctx context.Context, id chat.Identity, sessionID string) (SessionDetail, error) {
	if !id.Valid() {
		return SessionDetail{}, ErrIdentityRequired
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return SessionDetail{}, err
	}
	sess, err := s.store.GetSession(ctx, id.Owner(), sessionID)
	if err != nil {
		return SessionDetail{}, err
	}
	turns, err := s.store.LoadTurns(ctx, id.Owner(), sessionID, 0)
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{
		SessionOverview: overview(sess, turns, prefs.CurrentSessionID),
		Summary:         sess.Summary,
		Memory:          sess.Memory,
		Turns:           turns,
	}, nil
}

// SwitchSession makes an owned session current.
func (s *Service) SwitchSession(ctx context.Context, id chat.Identity, sessionID string) (chat.Session, error) {
	if !id.Valid() {
		return chat.Session{}, ErrIdentityRequired
	}
	unlock := s.Lock(id)
	defer unlock()

	sess, err := s.store.GetSession(ctx, id.Owner(), sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return chat.Session{}, err
	}
	prefs.CurrentSessionID = sess.ID
	if err := s.store.PutPreferences(ctx, prefs); err != nil {
		return chat.Session{}, err
	}
	return sess, nil
}

// DeleteSession removes an owned session and clears the current pointer if it pointed there.
func (s *Service) DeleteSession(ctx context.Context, id chat.Identity, sessionID string) error {
	if !id.Valid() {
		return ErrIdentityRequired
	}
	unlock := s.Lock(id)
	defer unlock()

	if err := s.store.DeleteSession(ctx, id.Owner(), sessionID); err != nil {
		return err
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return err
	}
	if prefs.CurrentSessionID == sessionID {
		prefs.CurrentSessionID = ""
		return s.store.PutPreferences(ctx, prefs)
	}
	return nil
}

// CurrentSession resolves (and if needed creates) the current durable session. Identities
// without consent have none.
func (s *Service) CurrentSession(ctx context.Context, id chat.Identity) (*chat.Session, error) {
	if !id.Valid() {
		return nil, ErrIdentityRequired
	}
	unlock := s.Lock(id)
	defer unlock()

	prefs, err := s.Preferences(ctx, id)
	if err != nil || !prefs.Consent {
		return nil, err
	}
	sess, err := s.currentSession(ctx, &prefs)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// History returns up to limit recent turns of the current conversation, oldest first.
func (s *Service) History(ctx context.Context, id chat.Identity, limit int) (chat.Transcript, error) {
	if !id.Valid() {
		return nil, ErrIdentityRequired
	}
	limit = ClampHistoryLimit(limit)
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return nil, err
	}
	if !prefs.Consent {
		return s.buffer.Snapshot(id.Owner()).Window(limit), nil
	}
	if prefs.CurrentSessionID == "" {
		return chat.Transcript{}, nil
	}
	turns, err := s.store.LoadTurns(ctx, id.Owner(), prefs.CurrentSessionID, limit)
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// ClampHistoryLimit applies the default and the bounds of the history endpoint.
func ClampHistoryLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultHistoryLimit
	case limit < 1:
		return 1
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// Context returns the durable summary and memory for consenting identities and the
// ephemeral history otherwise.
func (s *Service) Context(ctx context.Context, id chat.Identity) (ContextView, error) {
	if !id.Valid() {
		return ContextView{}, ErrIdentityRequired
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return ContextView{}, err
	}
	view := ContextView{Consent: prefs.Consent, Preferences: prefs}
	if !prefs.Consent {
		view.Ephemeral = s.buffer.Snapshot(id.Owner())
		return view, nil
	}
	if prefs.CurrentSessionID == "" {
		return view, nil
	}
	sess, err := s.store.GetSession(ctx, id.Owner(), prefs.CurrentSessionID)
	if err != nil {
		return ContextView{}, err
	}
	mem := sess.Memory.Clone()
	view.SessionID, view.Summary, view.Memory = sess.ID, sess.Summary, &mem
	return view, nil
}

// ClearEphemeral drops buffered turns and reports how many there were.
func (s *Service) ClearEphemeral(_ context.Context, id chat.Identity) (int, error) {
	if !id.Valid() {
		return 0, ErrIdentityRequired
	}
	n := s.buffer.Len(id.Owner())
	s.buffer.Clear(id.Owner())
	return n, nil
}

// Conversation is the state one message is processed against.
type Conversation struct {
	Identity    chat.Identity
	Preferences chat.Preferences
	// Session is nil for ephemeral conversations.
	Session    *chat.Session
	Transcript chat.Transcript
	Memory     chat.Memory
	Summary    string

	// pending is a session that does not exist in the store until Record commits it.
	pending *chat.Session
}

// Ephemeral reports whether the conversation is held in memory only.
func (c *Conversation) Ephemeral() bool {
	return c.Session == nil
}

// Conversation loads the context for the next message. The caller must hold Lock(id).
func (s *Service) Conversation(ctx context.Context, id chat.Identity) (*Conversation, error) {
	if !id.Valid() {
		return nil, ErrIdentityRequired
	}
	prefs, err := s.Preferences(ctx, id)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{Identity: id, Preferences: prefs}
	if !prefs.Consent {
		conv.Transcript = s.buffer.Snapshot(id.Owner())
		return conv, nil
	}

	before := prefs.CurrentSessionID
	sess, fresh, err := s.resolveSession(ctx, &prefs)
	if err != nil {
		return nil, err
	}
	var turns chat.Transcript
	if fresh {
		// stored with the first exchange, pointer included
		conv.pending = &sess
	} else {
		if prefs.CurrentSessionID != before {
			if err := s.store.PutPreferences(ctx, prefs); err != nil {
				return nil, err
			}
		}
		if turns, err = s.store.LoadTurns(ctx, id.Owner(), sess.ID, s.cfg.HistoryWindow); err != nil {
			return nil, err
		}
	}
	conv.Preferences = prefs
	conv.Session = &sess
	conv.Transcript = turns
	conv.Memory = sess.Memory.Clone()
	conv.Summary = sess.Summary
	return conv, nil
}

// UserTurnCount is the number of user turns including the one being processed.
func (c *Conversation) UserTurnCount() int {
	if c.Session != nil {
		return c.Session.UserTurnCount + 1
	}
	return c.Transcript.CountRole(chat.RoleUser) + 1
}

// Record persists one exchange: atomically to the durable session when consent is granted,
// otherwise into the capped ephemeral buffer. The caller must hold Lock(id).
func (s *Service) Record(ctx context.Context, conv *Conversation, ex store.Exchange) (*chat.Session, error) {
	if conv.Ephemeral() {
		n := s.buffer.Append(conv.Identity.Owner(), ex.User, ex.Bot)
		log.Printf("[chat] exchange buffered owner=%s buffered=%d", conv.Identity.Owner(), n)
		return nil, nil
	}
	if conv.pending != nil {
		prefs := conv.Preferences
		ex.NewSession, ex.Preferences = conv.pending, &prefs
	}
	sess, err := s.store.CommitExchange(ctx, conv.Identity.Owner(), conv.Session.ID, ex)
	if err != nil {
		return nil, err
	}
	conv.pending = nil
	return &sess, nil
}

// currentSession resolves the session, creating it when needed, and saves a changed
// current pointer.
func (s *Service) currentSession(ctx context.Context, prefs *chat.Preferences) (chat.Session, error) {
	before := prefs.CurrentSessionID
	sess, fresh, err := s.resolveSession(ctx, prefs)
	if err != nil {
		return chat.Session{}, err
	}
	if fresh {
		if sess, err = s.store.CreateSession(ctx, prefs.Owner); err != nil {
			return chat.Session{}, err
		}
		prefs.CurrentSessionID = sess.ID
	}
	if prefs.CurrentSessionID != before {
		if err := s.store.PutPreferences(ctx, *prefs); err != nil {
			return chat.Session{}, err
		}
	}
	return sess, nil
}

func overview(sess chat.Session, turns chat.Transcript, current string) SessionOverview {
	title := "New conversation"
	if first, ok := turns.FirstUserText(); ok {
		title = ellipsize(first, titleLength)
	}
	preview := ""
	if len(turns) > 0 {
		preview = ellipsize(turns[len(turns)-1].Text, previewLength)
	}
	return SessionOverview{
		ID:           sess.ID,
		Title:        title,
		Preview:      preview,
		MessageCount: len(turns),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		IsCurrent:    sess.ID == current,
	}
}

func ellipsize(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + "..."
}
