// Package store persists sessions, turns and preferences in BadgerDB. Every multi-record
// change runs in a single transaction so it lands completely or not at all.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotOwner        = errors.New("session belongs to another identity")
	ErrNoOwner         = errors.New("owner is required")
)

const (
	sessionPrefix = "session/"
	ownerPrefix   = "owner/"
	turnPrefix    = "turn/"
	prefPrefix    = "pref/"
)

// turnRecord is the at-rest form of a turn.
type turnRecord struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	Sender    string              `json:"sender"`
	Text      string              `json:"text"`
	Encrypted bool                `json:"encrypted"`
	Emotions  []chat.EmotionScore `json:"emotions,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Exchange is one user turn, its reply and the evolved session state.
type Exchange struct {
	User    chat.Turn
	Bot     chat.Turn
	Memory  chat.Memory
	Summary string
	// NewSession is inserted in the same transaction when the exchange opens it.
	NewSession *chat.Session
	// Preferences, when set, are stored in the same transaction.
	Preferences *chat.Preferences
}

// EncryptStats reports a maintenance pass over stored turns.
type EncryptStats struct {
	Scanned   int `json:"scanned"`
	Encrypted int `json:"encrypted"`
}

// Store is safe for concurrent use.
type Store struct {
	db     *DB
	cipher Cipher
	now    func() time.Time
}

// New wraps an open database. A nil cipher stores plaintext.
func New(db *DB, cipher Cipher) *Store {
	if cipher == nil {
		cipher = PlainCipher{}
	}
	return &Store{db: db, cipher: cipher, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Encrypting reports whether turns are encrypted at rest.
func (s *Store) Encrypting() bool {
	return s.cipher.Enabled()
}

func sessionKey(id string) []byte { return []byte(sessionPrefix + id) }

func ownerIndexPrefix(owner string) string { return ownerPrefix + url.PathEscape(owner) + "/" }

func ownerKey(owner string, created time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", ownerIndexPrefix(owner), created.UnixNano(), id))
}

func turnSessionPrefix(sessionID string) string { return turnPrefix + sessionID + "/" }

func turnKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%020d", turnSessionPrefix(sessionID), seq))
}

func prefKey(owner string) []byte { return []byte(prefPrefix + url.PathEscape(owner)) }

// NewSession builds an empty session for owner without storing it. Pass it to
// CommitExchange or Migrate to insert it together with its first turns.
func (s *Store) NewSession(owner string) (chat.Session, error) {
	if owner == "" {
		return chat.Session{}, ErrNoOwner
	}
	now := s.now().UTC()
	return chat.Session{ID: uuid.NewString(), Owner: owner, CreatedAt: now, UpdatedAt: now}, nil
}

// CreateSession creates an empty session owned by owner.
func (s *Store) CreateSession(ctx context.Context, owner string) (chat.Session, error) {
	sess, err := s.NewSession(owner)
	if err != nil {
		return chat.Session{}, err
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return insertSession(txn, sess)
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.Printf("[audit] session created owner=%s session=%s", owner, sess.ID)
	return sess, nil
}

func insertSession(txn *badger.Txn, sess chat.Session) error {
	if err := putJSON(txn, sessionKey(sess.ID), sess); err != nil {
		return err
	}
	return txn.Set(ownerKey(sess.Owner, sess.CreatedAt, sess.ID), nil)
}

// openSession loads an owned session, or inserts fresh when it is the session being opened.
func openSession(txn *badger.Txn, owner, sessionID string, fresh *chat.Session) (chat.Session, error) {
	if fresh == nil || fresh.ID != sessionID {
		return getOwnedSession(txn, owner, sessionID)
	}
	if fresh.Owner != owner {
		return chat.Session{}, ErrNotOwner
	}
	if err := insertSession(txn, *fresh); err != nil {
		return chat.Session{}, err
	}
	return *fresh, nil
}

// GetSession loads a session and checks ownership.
func (s *Store) GetSession(ctx context.Context, owner, id string) (chat.Session, error) {
	var sess chat.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		sess, err = getOwnedSession(txn, owner, id)
		return err
	})
	return sess, err
}

// ListSessions returns the owner's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, owner string) ([]chat.Session, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	var sessions []chat.Session
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		prefix := []byte(ownerIndexPrefix(owner))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			id := key[len(prefix)+21:]
			sess, err := getSession(txn, id)
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

// LatestSession returns the most recently created session of owner.
func (s *Store) LatestSession(ctx context.Context, owner string) (chat.Session, bool, error) {
	sessions, err := s.ListSessions(ctx, owner)
	if err != nil || len(sessions) == 0 {
		return chat.Session{}, false, err
	}
	return sessions[0], true, nil
}

// DeleteSession removes a session with all of its turns.
func (s *Store) DeleteSession(ctx context.Context, owner, id string) error {
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		sess, err := getOwnedSession(txn, owner, id)
		if err != nil {
			return err
		}
		keys, err := collectKeys(txn, []byte(turnSessionPrefix(id)))
		if err != nil {
			return err
		}
		keys = append(keys, sessionKey(id), ownerKey(owner, sess.CreatedAt, id))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[audit] session deleted owner=%s session=%s", owner, id)
	return nil
}

// LoadTurns returns the last limit turns of a session in chronological order. limit <= 0
// returns every turn.
func (s *Store) LoadTurns(ctx context.Context, owner, sessionID string, limit int) (chat.Transcript, error) {
	var turns chat.Transcript
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if _, err := getOwnedSession(txn, owner, sessionID); err != nil {
			return err
		}
		prefix := []byte(turnSessionPrefix(sessionID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec turnRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return fmt.Errorf("decode turn %s: %w", it.Item().Key(), err)
			}
			turns = append(turns, s.fromRecord(rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		return turns.Window(limit), nil
	}
	return turns, nil
}

// AppendTurns appends turns in order, e.g. when migrating the ephemeral buffer.
func (s *Store) AppendTurns(ctx context.Context, owner, sessionID string, turns []chat.Turn) (chat.Session, error) {
	var sess chat.Session
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		sess, err = getOwnedSession(txn, owner, sessionID)
		if err != nil {
			return err
		}
		if err := s.appendTurns(txn, &sess, turns...); err != nil {
			return err
		}
		sess.UpdatedAt = s.now().UTC()
		return putJSON(txn, sessionKey(sess.ID), sess)
	})
	if err != nil {
		return chat.Session{}, err
	}
	return sess, nil
}

// CommitExchange writes the user turn, the bot turn and the evolved memory and summary in
// one transaction, together with ex.NewSession and ex.Preferences when set.
func (s *Store) CommitExchange(ctx context.Context, owner, sessionID string, ex Exchange) (chat.Session, error) {
	var sess chat.Session
	if ex.Preferences != nil && ex.Preferences.Owner != owner {
		return chat.Session{}, fmt.Errorf("commit exchange: %w", ErrNotOwner)
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		sess, err = openSession(txn, owner, sessionID, ex.NewSession)
		if err != nil {
			return err
		}
		if err := s.appendTurns(txn, &sess, ex.User, ex.Bot); err != nil {
			return err
		}
		sess.Memory = ex.Memory.Clone()
		sess.Summary = ex.Summary
		sess.UpdatedAt = s.now().UTC()
		if err := putJSON(txn, sessionKey(sess.ID), sess); err != nil {
			return err
		}
		if ex.Preferences == nil {
			return nil
		}
		prefs := *ex.Preferences
		prefs.UpdatedAt = sess.UpdatedAt
		return putJSON(txn, prefKey(owner), prefs)
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("commit exchange: %w", err)
	}
	log.Printf("[audit] exchange persisted owner=%s session=%s user_len=%d bot_len=%d", owner, sessionID, len(ex.User.Text), len(ex.Bot.Text))
	return sess, nil
}

// Migrate copies buffered turns into a session and stores the preferences that granted
// consent, all in one transaction. fresh, when it carries sessionID, is inserted first.
func (s *Store) Migrate(ctx context.Context, prefs chat.Preferences, sessionID string, turns []chat.Turn, fresh *chat.Session) (chat.Session, error) {
	var sess chat.Session
	prefs.UpdatedAt = s.now().UTC()
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		sess, err = openSession(txn, prefs.Owner, sessionID, fresh)
		if err != nil {
			return err
		}
		if err := s.appendTurns(txn, &sess, turns...); err != nil {
			return err
		}
		sess.UpdatedAt = s.now().UTC()
		if err := putJSON(txn, sessionKey(sess.ID), sess); err != nil {
			return err
		}
		return putJSON(txn, prefKey(prefs.Owner), prefs)
	})
	if err != nil {
		return chat.Session{}, fmt.Errorf("migrate ephemeral turns: %w", err)
	}
	log.Printf("[audit] ephemeral turns migrated owner=%s session=%s turns=%d", prefs.Owner, sessionID, len(turns))
	return sess, nil
}

// UpdateState stores memory and summary without adding turns.
func (s *Store) UpdateState(ctx context.Context, owner, sessionID string, mem chat.Memory, summary string) (chat.Session, error) {
	var sess chat.Session
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var err error
		sess, err = getOwnedSession(txn, owner, sessionID)
		if err != nil {
			return err
		}
		sess.Memory = mem.Clone()
		sess.Summary = summary
		sess.UpdatedAt = s.now().UTC()
		return putJSON(txn, sessionKey(sess.ID), sess)
	})
	return sess, err
}

// GetPreferences returns stored preferences, or defaults with found=false.
func (s *Store) GetPreferences(ctx context.Context, owner string) (chat.Preferences, bool, error) {
	if owner == "" {
		return chat.Preferences{}, false, ErrNoOwner
	}
	prefs := chat.DefaultPreferences(owner, s.now().UTC())
	found := false
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := getJSON(txn, prefKey(owner), &prefs)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return chat.Preferences{}, false, fmt.Errorf("load preferences: %w", err)
	}
	return prefs, found, nil
}

// PutPreferences stores preferences keyed by their owner.
func (s *Store) PutPreferences(ctx context.Context, prefs chat.Preferences) error {
	if prefs.Owner == "" {
		return ErrNoOwner
	}
	prefs.UpdatedAt = s.now().UTC()
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, prefKey(prefs.Owner), prefs)
	})
}

// encryptBatchSize bounds how many turns one maintenance transaction rewrites.
var encryptBatchSize = 256

// EncryptPlaintextTurns encrypts every turn still stored in plaintext. Keys are collected
// in a read transaction and rewritten in batches, each batch in its own transaction, so a
// large store never exceeds badger's transaction limits. A batch re-reads each record and
// skips turns that were deleted or encrypted in the meantime.
func (s *Store) EncryptPlaintextTurns(ctx context.Context) (EncryptStats, error) {
	var stats EncryptStats
	if !s.cipher.Enabled() {
		return stats, errors.New("encryption key is not configured")
	}

	var pending [][]byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		pending, stats.Scanned, err = plaintextTurnKeys(txn)
		return err
	})
	if err != nil {
		return EncryptStats{}, fmt.Errorf("encrypt turns: %w", err)
	}

	size := encryptBatchSize
	if size <= 0 {
		size = len(pending)
	}
	for start := 0; start < len(pending); start += size {
		end := min(start+size, len(pending))
		var done int
		err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
			var err error
			done, err = s.encryptTurns(txn, pending[start:end])
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("encrypt turns: %w", err)
		}
		stats.Encrypted += done
	}

	log.Printf("[audit] plaintext turns encrypted scanned=%d encrypted=%d", stats.Scanned, stats.Encrypted)
	return stats, nil
}

// plaintextTurnKeys lists the keys of turns stored in plaintext.
func plaintextTurnKeys(txn *badger.Txn) ([][]byte, int, error) {
	prefix := []byte(turnPrefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var (
		keys    [][]byte
		scanned int
	)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		scanned++
		var rec turnRecord
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return nil, scanned, err
		}
		if !rec.Encrypted {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	return keys, scanned, nil
}

func (s *Store) encryptTurns(txn *badger.Txn, keys [][]byte) (int, error) {
	done := 0
	for _, key := range keys {
		var rec turnRecord
		err := getJSON(txn, key, &rec)
		if errors.Is(err, badger.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if rec.Encrypted {
			continue
		}
		enc, err := s.cipher.Encrypt(rec.Text)
		if err != nil {
			return 0, err
		}
		rec.Text, rec.Encrypted = enc, true
		if err := putJSON(txn, key, rec); err != nil {
			return 0, err
		}
		done++
	}
	return done, nil
}

func (s *Store) appendTurns(txn *badger.Txn, sess *chat.Session, turns ...chat.Turn) error {
	for _, t := range turns {
		rec, err := s.toRecord(sess.ID, t)
		if err != nil {
			return err
		}
		if err := putJSON(txn, turnKey(sess.ID, sess.TurnCount), rec); err != nil {
			return err
		}
		sess.TurnCount++
		if t.Role == chat.RoleUser {
			sess.UserTurnCount++
		}
	}
	return nil
}

func (s *Store) toRecord(sessionID string, t chat.Turn) (turnRecord, error) {
	rec := turnRecord{
		ID:        t.ID,
		SessionID: sessionID,
		Sender:    string(t.Role),
		Text:      t.Text,
		CreatedAt: t.CreatedAt,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if t.Role == chat.RoleUser {
		rec.Emotions = t.Emotions
	}
	if s.cipher.Enabled() {
		enc, err := s.cipher.Encrypt(t.Text)
		if err != nil {
			return turnRecord{}, err
		}
		rec.Text, rec.Encrypted = enc, true
	}
	return rec, nil
}

func (s *Store) fromRecord(rec turnRecord) chat.Turn {
	text := rec.Text
	if rec.Encrypted {
		text = s.cipher.Decrypt(text)
	}
	return chat.Turn{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Role:      chat.ParseRole(rec.Sender),
		Text:      text,
		Emotions:  rec.Emotions,
		CreatedAt: rec.CreatedAt,
	}
}

func getSession(txn *badger.Txn, id string) (chat.Session, error) {
	var sess chat.Session
	err := getJSON(txn, sessionKey(id), &sess)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

func getOwnedSession(txn *badger.Txn, owner, id string) (chat.Session, error) {
	if owner == "" {
		return chat.Session{}, ErrNoOwner
	}
	if id == "" {
		return chat.Session{}, ErrSessionNotFound
	}
	sess, err := getSession(txn, id)
	if err != nil {
		return chat.Session{}, err
	}
	if sess.Owner != owner {
		log.Printf("[audit] ownership violation owner=%s session=%s", owner, id)
		return chat.Session{}, ErrNotOwner
	}
	return sess, nil
}

func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error { return json.Unmarshal(val, out) })
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}
