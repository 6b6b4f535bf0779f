package companion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ent0n29/kindred/internal/memory"
)

const (
	moodSystem = "You classify the emotional tone of a message. Answer with exactly one word from: " +
		"happy, sad, anxious, angry, calm, excited, neutral."
	extractSystem = "You extract durable personal facts the user shared about themselves (preferences, people, " +
		"plans, pets, work). Answer with one fact per line, each line starting with \"- \". " +
		"Answer NONE if there is nothing worth remembering."
	summarySystem    = "You summarize a conversation between a user and their companion in two or three warm sentences."
	reflectionSystem = "You are a caring companion reading the user's diary entry. Reply with a short, kind reflection."
)

// Moods are the labels the mood classifier may return.
var Moods = []string{"happy", "sad", "anxious", "angry", "calm", "excited", "neutral"}

const defaultMood = "neutral"

var moodKeywords = map[string][]string{
	"happy":   {"happy", "glad", "great", "awesome", "love", "wonderful", "yay"},
	"sad":     {"sad", "down", "lonely", "cry", "miss", "upset"},
	"anxious": {"anxious", "worried", "nervous", "stress", "scared", "afraid"},
	"angry":   {"angry", "mad", "furious", "annoyed", "hate"},
	"excited": {"excited", "can't wait", "thrilled", "!!"},
	"calm":    {"calm", "relaxed", "peaceful", "chill"},
}

// guessMood is the keyword classifier used when no model is available.
func guessMood(text string) string {
	in := strings.ToLower(text)
	for _, mood := range Moods {
		for _, kw := range moodKeywords[mood] {
			if strings.Contains(in, kw) {
				return mood
			}
		}
	}
	return defaultMood
}

// parseMood extracts a known mood label from a model answer.
func parseMood(answer string) (string, bool) {
	word := strings.Trim(strings.ToLower(strings.TrimSpace(answer)), ".!\"' ")
	if slices.Contains(Moods, word) {
		return word, true
	}
	return "", false
}

// parseFacts reads "- fact" lines from an extraction answer.
func parseFacts(answer string) []string {
	var out []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		if fact := strings.TrimSpace(strings.TrimPrefix(line, "- ")); fact != "" {
			out = append(out, fact)
		}
	}
	return out
}

func bondLabel(level int) string {
	switch {
	case level < 20:
		return "just getting to know each other"
	case level < 50:
		return "becoming friends"
	case level < 80:
		return "close friends"
	default:
		return "inseparable"
	}
}

// BuildInstruction renders the system instruction for a companion turn.
func BuildInstruction(p Personality, profile memory.Profile, memories []string, live bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the user's AI companion. %s\n", p.Name, p.Style)
	fmt.Fprintf(&b, "Current mode: %s. Bond level: %d/100 (%s).", profile.Mode, profile.BondLevel, bondLabel(profile.BondLevel))
	if profile.Mood != "" {
		fmt.Fprintf(&b, " The user's recent mood: %s.", profile.Mood)
	}
	b.WriteString("\n")
	if len(memories) > 0 {
		b.WriteString("Things you remember about the user:\n")
		for _, m := range memories {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	if live {
		b.WriteString("You are speaking aloud. Keep replies brief and conversational, one to three sentences.\n")
		b.WriteString("When the user asks, use changePersonality, changeMode or setReminder instead of describing the change.\n")
	} else {
		b.WriteString("Keep replies natural and concise.\n")
	}
	return b.String()
}

func transcriptText(history []memory.TurnRecord) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return b.String()
}
