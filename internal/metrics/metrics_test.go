package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(situations.WithLabelValues("grief", "emotion_shortcut"))
	RecordSituation("grief", "emotion_shortcut")
	assert.Equal(t, before+1, testutil.ToFloat64(situations.WithLabelValues("grief", "emotion_shortcut")))

	before = testutil.ToFloat64(messages.WithLabelValues("ephemeral"))
	RecordMessage(true, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(messages.WithLabelValues("ephemeral")))

	before = testutil.ToFloat64(migrations)
	RecordMigration()
	assert.Equal(t, before+1, testutil.ToFloat64(migrations))
}
