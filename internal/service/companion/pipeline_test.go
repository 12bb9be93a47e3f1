package companion

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/enoki/backend/internal/analysis/lexicon"
	"github.com/zhouzirui/enoki/backend/internal/analysis/risk"
	"github.com/zhouzirui/enoki/backend/internal/analysis/sarcasm"
	"github.com/zhouzirui/enoki/backend/internal/analysis/signal"
	"github.com/zhouzirui/enoki/backend/internal/model/chat"
	"github.com/zhouzirui/enoki/backend/internal/model/generation"
	chatsvc "github.com/zhouzirui/enoki/backend/internal/service/chat"
	"github.com/zhouzirui/enoki/backend/internal/service/emotion"
	"github.com/zhouzirui/enoki/backend/internal/service/memory"
	"github.com/zhouzirui/enoki/backend/internal/service/reply"
	"github.com/zhouzirui/enoki/backend/internal/store"
)

type fakeAnalyzer struct {
	result emotion.Result
}

func (f fakeAnalyzer) Analyze(context.Context, string) emotion.Result {
	return f.result
}

var failing = generation.GeneratorFunc(func(context.Context, string, generation.Options) (string, error) {
	return "", errors.New("model unavailable")
})

// scripted answers classification prompts with situation and everything else with a short reply.
func scripted(situation string, calls *int32) generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, prompt string, _ generation.Options) (string, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		switch {
		case strings.HasPrefix(prompt, "Classify"):
			return situation, nil
		case strings.HasPrefix(prompt, "Extract"):
			return `{"stressor":"exams","motivation":"","coping":["walking"],"trajectory":"stable"}`, nil
		case strings.HasPrefix(prompt, "Rewrite"):
			return "The user is stressed about exams.", nil
		default:
			return "That sounds like a lot. Walking seemed to help before.", nil
		}
	})
}

func newPipeline(t *testing.T, gen generation.Generator, analyzer Analyzer) (*Pipeline, *chatsvc.Service, *store.Buffer) {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	buffer := store.NewBuffer(10)
	chats := chatsvc.NewService(store.New(db, nil), buffer, chatsvc.Config{})
	lex := lexicon.Default()
	extractor := signal.NewExtractor(lex)
	p := New(Deps{
		Chats:     chats,
		Analyzer:  analyzer,
		Extractor: extractor,
		Sarcasm:   sarcasm.NewScorer(sarcasm.DefaultConfig(), extractor),
		Risk:      risk.NewClassifier(risk.DefaultConfig(), lex, gen),
		Replies:   reply.NewBuilder(reply.DefaultConfig(), gen, nil),
		Memory:    memory.NewEvolver(memory.DefaultConfig(), gen),
	})
	return p, chats, buffer
}

func TestCrisisReplyCarriesResourcesWhenGenerationFails(t *testing.T) {
	p, _, _ := newPipeline(t, failing, fakeAnalyzer{result: emotion.Result{
		Emotions: []chat.EmotionScore{{Label: "joy", Score: 0.9}},
	}})

	res, err := p.Submit(context.Background(), chat.Identity{AnonID: "a1"}, Message{Text: "I'm going to kill myself tonight"})
	require.NoError(t, err)

	assert.Equal(t, risk.ImmediateDanger, res.Situation)
	assert.Equal(t, risk.LayerExplicitMarker, res.SituationLayer)
	for _, line := range reply.DefaultCrisisResources() {
		assert.Contains(t, res.Reply, line)
	}
	assert.True(t, res.ConsentRequired)
	assert.Nil(t, res.SessionID)
}

func TestCrisisNeverConsultsModelForClassification(t *testing.T) {
	var classifyCalls int32
	gen := generation.GeneratorFunc(func(_ context.Context, prompt string, _ generation.Options) (string, error) {
		if strings.HasPrefix(prompt, "Classify") {
			atomic.AddInt32(&classifyCalls, 1)
			return "NORMAL", nil
		}
		return "I'm really glad you told me. You matter.", nil
	})
	p, _, _ := newPipeline(t, gen, fakeAnalyzer{})

	res, err := p.Submit(context.Background(), chat.Identity{UserID: "u1"}, Message{Text: "I want to KILL MYSELF"})
	require.NoError(t, err)
	assert.Equal(t, risk.ImmediateDanger, res.Situation)
	assert.Zero(t, atomic.LoadInt32(&classifyCalls))
	assert.Equal(t, 1, strings.Count(res.Reply, reply.DefaultCrisisResources()[0]))
}

func TestCoffeeSpillIsSarcasticAndNormal(t *testing.T) {
	p, _, _ := newPipeline(t, failing, fakeAnalyzer{})

	res, err := p.Submit(context.Background(), chat.Identity{AnonID: "a1"}, Message{Text: "I spilled coffee everywhere, best day ever!"})
	require.NoError(t, err)
	assert.Equal(t, sarcasm.Sarcastic, res.Sarcasm.Label)
	assert.Contains(t, res.Sarcasm.Sources, sarcasm.SourcePosNegCombo)
	assert.Equal(t, risk.Normal, res.Situation)
	assert.NotEmpty(t, res.Reply)
}

func TestConsentInPayloadMigratesThenPersists(t *testing.T) {
	ctx := context.Background()
	p, chats, buffer := newPipeline(t, scripted("HIGH_DISTRESS", nil), fakeAnalyzer{result: emotion.Result{
		Emotions: []chat.EmotionScore{{Label: "nervousness", Score: 0.7}},
	}})
	alice := chat.Identity{UserID: "alice"}

	res, err := p.Submit(ctx, alice, Message{Text: "My exams are next week"})
	require.NoError(t, err)
	assert.True(t, res.ConsentRequired)
	assert.Nil(t, res.Memory)
	assert.Equal(t, 2, buffer.Len(alice.Owner()))

	granted := true
	res, err = p.Submit(ctx, alice, Message{Text: "I barely sleep, I went walking to calm down", Consent: &granted})
	require.NoError(t, err)
	require.NotNil(t, res.Migration)
	assert.Equal(t, 2, res.Migration.Turns)
	require.NotNil(t, res.SessionID)
	assert.Equal(t, res.Migration.SessionID, *res.SessionID)
	assert.False(t, res.ConsentRequired)
	assert.Equal(t, risk.HighDistress, res.Situation)
	assert.Zero(t, buffer.Len(alice.Owner()))

	require.NotNil(t, res.Memory)
	assert.Equal(t, "exams", res.Memory.Stressor)
	assert.Contains(t, res.Memory.Coping, "walking")
	require.NotNil(t, res.Summary)
	assert.Equal(t, "The user is stressed about exams.", *res.Summary)

	history, err := chats.History(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "My exams are next week", history[0].Text)
	assert.Equal(t, chat.RoleUser, history[2].Role)
	assert.Equal(t, "I barely sleep, I went walking to calm down", history[2].Text)
	assert.NotEmpty(t, history[2].Emotions)
}

func TestAnonymousConsentInPayloadIsRejected(t *testing.T) {
	p, _, _ := newPipeline(t, failing, fakeAnalyzer{})
	granted := true

	_, err := p.Submit(context.Background(), chat.Identity{AnonID: "a1"}, Message{Text: "hi", Consent: &granted})
	assert.ErrorIs(t, err, chatsvc.ErrConsentForbidden)
}

func TestSubmitValidation(t *testing.T) {
	p, _, _ := newPipeline(t, failing, fakeAnalyzer{})

	_, err := p.Submit(context.Background(), chat.Identity{AnonID: "a1"}, Message{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = p.Submit(context.Background(), chat.Identity{}, Message{Text: "hi"})
	assert.ErrorIs(t, err, chatsvc.ErrIdentityRequired)

	_, err = ValidateText(strings.Repeat("a", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestProcessReportsAnalysisBeforeReply(t *testing.T) {
	var order []string
	gen := generation.GeneratorFunc(func(_ context.Context, prompt string, _ generation.Options) (string, error) {
		if strings.HasPrefix(prompt, "Classify") {
			return "GRIEF", nil
		}
		order = append(order, "reply")
		return "I'm so sorry about your loss.", nil
	})
	p, _, _ := newPipeline(t, gen, fakeAnalyzer{})

	res, err := p.Process(context.Background(), chat.Identity{AnonID: "a1"}, Message{Text: "my grandmother passed away"}, func(a Analysis) {
		order = append(order, "analysis:"+string(a.Situation.Category))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis:grief", "reply"}, order)
	assert.Equal(t, risk.Grief, res.Situation)
}
