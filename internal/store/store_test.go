package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func userTurn(text string) chat.Turn {
	return chat.Turn{Role: chat.RoleUser, Text: text, Emotions: []chat.EmotionScore{{Label: "sadness", Score: 0.4}}}
}

func botTurn(text string) chat.Turn {
	return chat.Turn{Role: chat.RoleBot, Text: text, Emotions: []chat.EmotionScore{{Label: "joy", Score: 0.9}}}
}

func TestSessionOwnership(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)

	sess, err := s.CreateSession(ctx, "user:1")
	require.NoError(t, err)

	_, err = s.GetSession(ctx, "user:2", sess.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = s.LoadTurns(ctx, "anon:x", sess.ID, 0)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = s.DeleteSession(ctx, "user:2", sess.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = s.GetSession(ctx, "user:1", "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMigrateInsertsFreshSession(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)

	stranger, err := s.NewSession("user:2")
	require.NoError(t, err)
	_, err = s.Migrate(ctx, chat.Preferences{Owner: "user:1"}, stranger.ID, []chat.Turn{userTurn("one")}, &stranger)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = s.GetSession(ctx, "user:2", stranger.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "nothing is stored when the migration fails")

	fresh, err := s.NewSession("user:1")
	require.NoError(t, err)
	sess, err := s.Migrate(ctx, chat.Preferences{Owner: "user:1", CurrentSessionID: fresh.ID}, fresh.ID, []chat.Turn{userTurn("one"), botTurn("two")}, &fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, sess.TurnCount)

	latest, ok, err := s.LatestSession(ctx, "user:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fresh.ID, latest.ID)
}

func TestCommitExchangeIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)
	sess, err := s.CreateSession(ctx, "user:1")
	require.NoError(t, err)

	updated, err := s.CommitExchange(ctx, "user:1", sess.ID, Exchange{
		User:    userTurn("rough day"),
		Bot:     botTurn("I'm here."),
		Memory:  chat.Memory{Stressor: "work"},
		Summary: "User had a rough day.",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TurnCount)
	assert.Equal(t, 1, updated.UserTurnCount)
	assert.Equal(t, "work", updated.Memory.Stressor)

	turns, err := s.LoadTurns(ctx, "user:1", sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.NotEmpty(t, turns[0].Emotions)
	assert.Equal(t, chat.RoleBot, turns[1].Role)
	assert.Empty(t, turns[1].Emotions, "emotions are kept for user turns only")

	_, err = s.CommitExchange(ctx, "user:2", sess.ID, Exchange{User: userTurn("x"), Bot: botTurn("y")})
	require.Error(t, err)
	turns, err = s.LoadTurns(ctx, "user:1", sess.ID, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2, "a rejected exchange must not leave partial writes")
}

func TestLoadTurnsWindow(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)
	sess, err := s.CreateSession(ctx, "anon:a")
	require.NoError(t, err)

	var turns []chat.Turn
	for i := 0; i < 12; i++ {
		turns = append(turns, userTurn(fmt.Sprintf("m%d", i)))
	}
	_, err = s.AppendTurns(ctx, "anon:a", sess.ID, turns)
	require.NoError(t, err)

	last, err := s.LoadTurns(ctx, "anon:a", sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, "m9", last[0].Text)
	assert.Equal(t, "m11", last[2].Text)
}

func TestListAndDeleteSessions(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)

	first, err := s.CreateSession(ctx, "user:1")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "user:1")
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, "user:2")
	require.NoError(t, err)

	_, err = s.AppendTurns(ctx, "user:1", first.ID, []chat.Turn{userTurn("hello")})
	require.NoError(t, err)

	sessions, err := s.ListSessions(ctx, "user:1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID)

	require.NoError(t, s.DeleteSession(ctx, "user:1", first.ID))
	sessions, err = s.ListSessions(ctx, "user:1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	err = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(turnKey(first.ID, 0))
		return err
	})
	assert.True(t, errors.Is(err, badger.ErrKeyNotFound), "turns are deleted with their session")
}

func TestPreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t), nil)

	prefs, found, err := s.GetPreferences(ctx, "anon:a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, chat.ToneEmpathetic, prefs.Tone)
	assert.False(t, prefs.Consent)

	prefs.Tone = chat.ToneBatman
	prefs.Consent = true
	require.NoError(t, s.PutPreferences(ctx, prefs))

	got, found, err := s.GetPreferences(ctx, "anon:a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, chat.ToneBatman, got.Tone)
	assert.True(t, got.Consent)
}

func TestEncryptionAtRest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cipher, err := NewCipher(testKey(t))
	require.NoError(t, err)
	s := New(db, cipher)

	sess, err := s.CreateSession(ctx, "user:1")
	require.NoError(t, err)
	_, err = s.AppendTurns(ctx, "user:1", sess.ID, []chat.Turn{userTurn("my secret")})
	require.NoError(t, err)

	var stored turnRecord
	require.NoError(t, db.View(func(txn *badger.Txn) error { return getJSON(txn, turnKey(sess.ID, 0), &stored) }))
	assert.True(t, stored.Encrypted)
	assert.NotContains(t, stored.Text, "my secret")

	turns, err := s.LoadTurns(ctx, "user:1", sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "my secret", turns[0].Text)
}

func TestEncryptPlaintextTurns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	plain := New(db, nil)

	sess, err := plain.CreateSession(ctx, "user:1")
	require.NoError(t, err)
	_, err = plain.AppendTurns(ctx, "user:1", sess.ID, []chat.Turn{userTurn("one"), botTurn("two")})
	require.NoError(t, err)

	_, err = plain.EncryptPlaintextTurns(ctx)
	require.Error(t, err, "no key configured")

	cipher, err := NewCipher(testKey(t))
	require.NoError(t, err)
	encrypted := New(db, cipher)

	stats, err := encrypted.EncryptPlaintextTurns(ctx)
	require.NoError(t, err)
	assert.Equal(t, EncryptStats{Scanned: 2, Encrypted: 2}, stats)

	stats, err = encrypted.EncryptPlaintextTurns(ctx)
	require.NoError(t, err)
	assert.Equal(t, EncryptStats{Scanned: 2, Encrypted: 0}, stats)

	turns, err := encrypted.LoadTurns(ctx, "user:1", sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "one", turns[0].Text)
	assert.Equal(t, "two", turns[1].Text)
}

func TestEncryptPlaintextTurnsInBatches(t *testing.T) {
	prev := encryptBatchSize
	encryptBatchSize = 2
	t.Cleanup(func() { encryptBatchSize = prev })

	ctx := context.Background()
	db := openTestDB(t)
	plain := New(db, nil)

	sess, err := plain.CreateSession(ctx, "user:1")
	require.NoError(t, err)
	var turns []chat.Turn
	for i := 0; i < 5; i++ {
		turns = append(turns, userTurn(fmt.Sprintf("line %d", i)))
	}
	_, err = plain.AppendTurns(ctx, "user:1", sess.ID, turns)
	require.NoError(t, err)

	cipher, err := NewCipher(testKey(t))
	require.NoError(t, err)
	encrypted := New(db, cipher)

	stats, err := encrypted.EncryptPlaintextTurns(ctx)
	require.NoError(t, err)
	assert.Equal(t, EncryptStats{Scanned: 5, Encrypted: 5}, stats)

	// every record now carries ciphertext at rest
	require.NoError(t, db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		keys, scanned, err := plaintextTurnKeys(txn)
		assert.Empty(t, keys)
		assert.Equal(t, 5, scanned)
		return err
	}))

	loaded, err := encrypted.LoadTurns(ctx, "user:1", sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 5)
	assert.Equal(t, "line 4", loaded[4].Text)
}

func TestCipherDegradesGracefully(t *testing.T) {
	c, err := NewCipher("")
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	_, err = NewCipher("not-a-key")
	assert.Error(t, err)

	fc, err := NewCipher(testKey(t))
	require.NoError(t, err)
	assert.Equal(t, "legacy plaintext", fc.Decrypt("legacy plaintext"))
}

func TestBufferCapEvictsOldest(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 13; i++ {
		n := b.Append("anon:a", chat.Turn{Role: chat.RoleUser, Text: fmt.Sprintf("t%d", i)})
		require.LessOrEqual(t, n, 10)
	}

	snap := b.Snapshot("anon:a")
	require.Len(t, snap, 10)
	assert.Equal(t, "t3", snap[0].Text)
	assert.Equal(t, "t12", snap[9].Text)
	assert.Zero(t, b.Len("anon:b"))

	b.Clear("anon:a")
	assert.Zero(t, b.Len("anon:a"))
}
