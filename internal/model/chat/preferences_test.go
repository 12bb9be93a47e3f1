package chat

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSetLanguage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: " es ", want: "es"},
		{name: "blank keeps default", raw: "   ", want: DefaultLanguage},
		{name: "ascii truncated", raw: "english-us", want: "english-"},
		{name: "multibyte truncated on rune boundary", raw: "日本語日本語日本語", want: "日本語日本語日本"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPreferences("user:1", time.Now())
			p.SetLanguage(tt.raw)
			assert.Equal(t, tt.want, p.Language)
			assert.True(t, utf8.ValidString(p.Language))
		})
	}
}
