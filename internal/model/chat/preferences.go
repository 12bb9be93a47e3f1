package chat

import (
	"strings"
	"time"
)

// Tone is the reply style the user asked for.
type Tone string

const (
	ToneEmpathetic   Tone = "empathetic"
	ToneSupportive   Tone = "supportive"
	ToneProfessional Tone = "professional"
	ToneGentle       Tone = "gentle"
	ToneCasual       Tone = "casual"
	ToneBatman       Tone = "batman"
)

// Tones lists the selectable tones in display order.
func Tones() []Tone {
	return []Tone{ToneEmpathetic, ToneSupportive, ToneProfessional, ToneGentle, ToneCasual, ToneBatman}
}

// ParseTone normalizes raw input; unknown tones fall back to empathetic.
func ParseTone(raw string) (Tone, bool) {
	normalized := Tone(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range Tones() {
		if t == normalized {
			return t, true
		}
	}
	return ToneEmpathetic, false
}

const (
	DefaultLanguage   = "en"
	MaxToneLength     = 32
	MaxLanguageLength = 8
	ConsentVersion    = "1.0"
)

// Preferences stores tone, language and storage consent for one identity.
type Preferences struct {
	Owner            string     `json:"owner"`
	Tone             Tone       `json:"tone"`
	Language         string     `json:"language"`
	Consent          bool       `json:"consent"`
	ConsentAt        *time.Time `json:"consentTimestamp,omitempty"`
	CurrentSessionID string     `json:"currentSessionId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// DefaultPreferences returns the preferences a new identity starts with: no consent.
func DefaultPreferences(owner string, now time.Time) Preferences {
	return Preferences{
		Owner:     owner,
		Tone:      ToneEmpathetic,
		Language:  DefaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetLanguage truncates to the stored width, counted in characters.
func (p *Preferences) SetLanguage(raw string) {
	lang := strings.TrimSpace(raw)
	if lang == "" {
		return
	}
	if r := []rune(lang); len(r) > MaxLanguageLength {
		lang = string(r[:MaxLanguageLength])
	}
	p.Language = lang
}
