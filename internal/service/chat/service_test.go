package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

func newTestService(t *testing.T, cfg Config) (*Service, *store.Buffer) {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	buffer := store.NewBuffer(10)
	return NewService(store.New(db, nil), buffer, cfg), buffer
}

func turn(role chat.Role, text string) chat.Turn {
	return chat.Turn{Role: role, Text: text}
}

func granted(b bool) *bool { return &b }

func TestConsentMigratesEphemeralTurns(t *testing.T) {
	ctx := context.Background()
	svc, buffer := newTestService(t, Config{})
	alice := chat.Identity{UserID: "alice"}

	buffer.Append(alice.Owner(),
		turn(chat.RoleUser, "one"),
		turn(chat.RoleBot, "two"),
		turn(chat.RoleUser, "three"),
	)

	status, err := svc.ConsentStatus(ctx, alice)
	require.NoError(t, err)
	assert.False(t, status.Granted)
	assert.Equal(t, 3, status.EphemeralMessageCount)

	prefs, migration, err := svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)
	require.NotNil(t, migration)
	assert.True(t, prefs.Consent)
	assert.NotNil(t, prefs.ConsentAt)
	assert.Equal(t, 3, migration.Turns)
	assert.Equal(t, migration.SessionID, prefs.CurrentSessionID)
	assert.Zero(t, buffer.Len(alice.Owner()))

	history, err := svc.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"one", "two", "three"}, texts(history))

	unlock := svc.Lock(alice)
	conv, err := svc.Conversation(ctx, alice)
	require.NoError(t, err)
	require.False(t, conv.Ephemeral())
	assert.Equal(t, 3, conv.UserTurnCount())
	_, err = svc.Record(ctx, conv, store.Exchange{
		User: turn(chat.RoleUser, "four"),
		Bot:  turn(chat.RoleBot, "five"),
	})
	unlock()
	require.NoError(t, err)

	history, err = svc.History(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, texts(history))
	assert.Zero(t, buffer.Len(alice.Owner()))
}

func TestGrantWithEmptyBufferCreatesNoSession(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	bob := chat.Identity{UserID: "bob"}

	_, migration, err := svc.UpdatePreferences(ctx, bob, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)
	assert.Nil(t, migration)

	sessions, err := svc.ListSessions(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestFirstExchangeCreatesSessionAtomically(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	carol := chat.Identity{UserID: "carol"}

	_, _, err := svc.UpdatePreferences(ctx, carol, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)

	unlock := svc.Lock(carol)
	defer unlock()
	conv, err := svc.Conversation(ctx, carol)
	require.NoError(t, err)
	require.NotNil(t, conv.Session)
	assert.Equal(t, 1, conv.UserTurnCount())

	sessions, err := svc.ListSessions(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, sessions, "loading a conversation stores nothing")

	ex := store.Exchange{User: turn(chat.RoleUser, "hello"), Bot: turn(chat.RoleBot, "hi there")}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Record(cancelled, conv, ex)
	require.Error(t, err)

	sessions, err = svc.ListSessions(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, sessions, "a failed commit leaves no empty session behind")

	sess, err := svc.Record(ctx, conv, ex)
	require.NoError(t, err)
	assert.Equal(t, conv.Session.ID, sess.ID)
	assert.Equal(t, 2, sess.TurnCount)

	prefs, err := svc.Preferences(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, prefs.CurrentSessionID)

	sessions, err = svc.ListSessions(ctx, carol)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MessageCount)
}

func TestAnonymousConsentForbidden(t *testing.T) {
	ctx := context.Background()
	svc, buffer := newTestService(t, Config{})
	anon := chat.Identity{AnonID: "a1"}
	buffer.Append(anon.Owner(), turn(chat.RoleUser, "hello"))

	_, _, err := svc.UpdatePreferences(ctx, anon, PreferenceUpdate{Consent: granted(true)})
	assert.ErrorIs(t, err, ErrConsentForbidden)
	assert.Equal(t, 1, buffer.Len(anon.Owner()))

	prefs, err := svc.Preferences(ctx, anon)
	require.NoError(t, err)
	assert.False(t, prefs.Consent)
}

func TestAnonymousConsentAllowedByConfig(t *testing.T) {
	ctx := context.Background()
	svc, buffer := newTestService(t, Config{AnonConsentAllowed: true})
	anon := chat.Identity{AnonID: "a1"}
	buffer.Append(anon.Owner(), turn(chat.RoleUser, "hello"))

	_, migration, err := svc.UpdatePreferences(ctx, anon, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)
	require.NotNil(t, migration)
	assert.Equal(t, 1, migration.Turns)
}

func TestRevokeClearsBuffer(t *testing.T) {
	ctx := context.Background()
	svc, buffer := newTestService(t, Config{})
	alice := chat.Identity{UserID: "alice"}

	_, _, err := svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)

	buffer.Append(alice.Owner(), turn(chat.RoleUser, "stale"))
	status, _, err := svc.SetConsent(ctx, alice, false)
	require.NoError(t, err)
	assert.False(t, status.Granted)
	assert.NotNil(t, status.Timestamp)
	assert.False(t, status.HasEphemeralData)

	unlock := svc.Lock(alice)
	conv, err := svc.Conversation(ctx, alice)
	require.NoError(t, err)
	assert.True(t, conv.Ephemeral())
	_, err = svc.Record(ctx, conv, store.Exchange{User: turn(chat.RoleUser, "hi"), Bot: turn(chat.RoleBot, "hey")})
	unlock()
	require.NoError(t, err)
	assert.Equal(t, 2, buffer.Len(alice.Owner()))

	sessions, err := svc.ListSessions(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestPreferenceValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	alice := chat.Identity{UserID: "alice"}

	tone := "casual"
	lang := "es"
	prefs, _, err := svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Tone: &tone, Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, chat.ToneCasual, prefs.Tone)
	assert.Equal(t, "es", prefs.Language)

	unknown := "pirate"
	prefs, _, err = svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Tone: &unknown})
	require.NoError(t, err)
	assert.Equal(t, chat.ToneEmpathetic, prefs.Tone)

	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	_, _, err = svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Tone: &long})
	assert.ErrorIs(t, err, ErrInvalidTone)

	longLang := "english-us"
	_, _, err = svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Language: &longLang})
	assert.ErrorIs(t, err, ErrInvalidLanguage)

	wide := "简体中文"
	prefs, _, err = svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Language: &wide})
	require.NoError(t, err, "length is counted in characters")
	assert.Equal(t, "简体中文", prefs.Language)

	_, err = svc.Preferences(ctx, chat.Identity{})
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{})
	alice := chat.Identity{UserID: "alice"}
	mallory := chat.Identity{UserID: "mallory"}

	none, err := svc.NewSession(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, _, err = svc.UpdatePreferences(ctx, alice, PreferenceUpdate{Consent: granted(true)})
	require.NoError(t, err)

	first, err := svc.NewSession(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, first)

	unlock := svc.Lock(alice)
	conv, err := svc.Conversation(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, conv.Session.ID)
	_, err = svc.Record(ctx, conv, store.Exchange{
		User: turn(chat.RoleUser, "My exams start next week and I can't sleep at all, it is getting worse"),
		Bot:  turn(chat.RoleBot, "That sounds exhausting."),
	})
	unlock()
	require.NoError(t, err)

	second, err := svc.NewSession(ctx, alice)
	require.NoError(t, err)

	list, err := svc.ListSessions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.True(t, list[0].IsCurrent)
	assert.Equal(t, "New conversation", list[0].Title)
	assert.Equal(t, 2, list[1].MessageCount)
	assert.Equal(t, "My exams start next week and I can't sleep at all,...", list[1].Title)
	assert.Equal(t, "That sounds exhausting.", list[1].Preview)

	_, err = svc.SessionDetail(ctx, mallory, first.ID)
	assert.ErrorIs(t, err, ErrOwnership)
	_, err = svc.SwitchSession(ctx, mallory, first.ID)
	assert.ErrorIs(t, err, ErrOwnership)
	assert.ErrorIs(t, svc.DeleteSession(ctx, mallory, first.ID), ErrOwnership)
	_, err = svc.SessionDetail(ctx, alice, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	switched, err := svc.SwitchSession(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, switched.ID)

	detail, err := svc.SessionDetail(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.True(t, detail.IsCurrent)
	assert.Len(t, detail.Turns, 2)

	require.NoError(t, svc.DeleteSession(ctx, alice, first.ID))
	prefs, err := svc.Preferences(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, prefs.CurrentSessionID)

	// the next conversation falls back to the newest remaining session
	unlock = svc.Lock(alice)
	conv, err = svc.Conversation(ctx, alice)
	unlock()
	require.NoError(t, err)
	assert.Equal(t, second.ID, conv.Session.ID)
}

func TestHistoryLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampHistoryLimit(0))
	assert.Equal(t, 1, ClampHistoryLimit(-5))
	assert.Equal(t, MaxHistoryLimit, ClampHistoryLimit(1000))
	assert.Equal(t, 7, ClampHistoryLimit(7))

	ctx := context.Background()
	svc, buffer := newTestService(t, Config{})
	anon := chat.Identity{AnonID: "a1"}
	for _, text := range []string{"a", "b", "c", "d"} {
		buffer.Append(anon.Owner(), turn(chat.RoleUser, text))
	}
	history, err := svc.History(ctx, anon, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, texts(history))
}

func TestContextView(t *testing.T) {
	ctx := context.Background()
	svc, buffer := newTestService(t, Config{})
	anon := chat.Identity{AnonID: "a1"}
	buffer.Append(anon.Owner(), turn(chat.RoleUser, "hi"))

	view, err := svc.Context(ctx, anon)
	require.NoError(t, err)
	assert.False(t, view.Consent)
	assert.Len(t, view.Ephemeral, 1)
	assert.Nil(t, view.Memory)

	n, err := svc.ClearEphemeral(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, buffer.Len(anon.Owner()))
}

func texts(turns chat.Transcript) []string {
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		out = append(out, t.Text)
	}
	return out
}
