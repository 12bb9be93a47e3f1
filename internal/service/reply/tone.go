package reply

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/enoki/backend/internal/model/chat"
)

// ToneProfile describes how a tone should sound.
type ToneProfile struct {
	Tone     chat.Tone `json:"tone"`
	Label    string    `json:"label"`
	Style    string    `json:"style"`
	Approach string    `json:"approach"`
	Hints    []string  `json:"hints"`
}

// ToneProfiles manages the tone catalogue.
type ToneProfiles struct {
	profiles map[chat.Tone]*ToneProfile
}

// NewToneProfiles creates the catalogue with the built-in tones.
func NewToneProfiles() *ToneProfiles {
	tp := &ToneProfiles{profiles: make(map[chat.Tone]*ToneProfile)}
	tp.loadDefaultProfiles()
	return tp
}

// Get returns the profile for tone, falling back to empathetic.
func (tp *ToneProfiles) Get(tone chat.Tone) *ToneProfile {
	if p, ok := tp.profiles[tone]; ok {
		return p
	}
	return tp.profiles[chat.ToneEmpathetic]
}

// List returns every profile in display order.
func (tp *ToneProfiles) List() []ToneProfile {
	out := make([]ToneProfile, 0, len(tp.profiles))
	for _, tone := range chat.Tones() {
		if p, ok := tp.profiles[tone]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Instructions renders the tone block embedded in every reply prompt.
func (tp *ToneProfiles) Instructions(tone chat.Tone) string {
	p := tp.Get(tone)
	return fmt.Sprintf(`Tone: %s
- Style: %s
- Approach: %s
- %s`,
		p.Label,
		p.Style,
		p.Approach,
		strings.Join(p.Hints, "\n- "),
	)
}

func (tp *ToneProfiles) loadDefaultProfiles() {
	tp.profiles[chat.ToneEmpathetic] = &ToneProfile{
		Tone:     chat.ToneEmpathetic,
		Label:    "Empathetic",
		Style:    "warm, emotionally attuned, validating",
		Approach: "reflect the feeling in your own words, then gently explore what is underneath",
		Hints: []string{
			"Name the specific feeling instead of a generic one",
			"Ask at most one open question",
		},
	}
	tp.profiles[chat.ToneSupportive] = &ToneProfile{
		Tone:     chat.ToneSupportive,
		Label:    "Supportive",
		Style:    "encouraging, steady, strengths-focused",
		Approach: "acknowledge the difficulty and point to what the user is already doing well",
		Hints: []string{
			"Offer one small, concrete next step when it fits",
			"Avoid toxic positivity",
		},
	}
	tp.profiles[chat.ToneProfessional] = &ToneProfile{
		Tone:     chat.ToneProfessional,
		Label:    "Professional",
		Style:    "calm, structured, clear",
		Approach: "summarize the situation briefly and offer practical options",
		Hints: []string{
			"Use plain language, never clinical labels",
			"Keep structure light: no headings, no bullet lists",
		},
	}
	tp.profiles[chat.ToneGentle] = &ToneProfile{
		Tone:     chat.ToneGentle,
		Label:    "Gentle",
		Style:    "soft, slow, reassuring",
		Approach: "slow the pace down and make room for whatever the user feels",
		Hints: []string{
			"Use short sentences",
			"Never push for details",
		},
	}
	tp.profiles[chat.ToneCasual] = &ToneProfile{
		Tone:     chat.ToneCasual,
		Label:    "Casual",
		Style:    "friendly, relaxed, conversational",
		Approach: "talk like a caring friend texting back",
		Hints: []string{
			"Contractions and everyday words are fine",
			"Light humour only when the user is not struggling",
		},
	}
	tp.profiles[chat.ToneBatman] = &ToneProfile{
		Tone:     chat.ToneBatman,
		Label:    "Batman",
		Style:    "gravelly, terse, quietly protective",
		Approach: "speak like a stoic mentor who has seen dark nights and believes the user can get through this one",
		Hints: []string{
			"Short, firm sentences with dry resolve",
			"Never mention violence or vigilantism",
		},
	}
}
