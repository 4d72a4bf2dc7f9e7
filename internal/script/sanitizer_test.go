package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDropsCustomerLines(t *testing.T) {
	s := MustDefault()
	got := s.Sanitize("Agent: Hi\nMaria Lopez: sure\nAgent: thanks", "Maria Lopez")
	assert.Equal(t, "Agent: Hi\nAgent: thanks", got)
}

func TestFilterRules(t *testing.T) {
	s := MustDefault()
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"first name label", "Agent: Hello Maria\nMaria: hi there\nAgent: Great", "Agent: Hello Maria\nAgent: Great"},
		{"case-insensitive name", "Agent: Hello\nmaria lopez: hey", "Agent: Hello"},
		{"generic customer marker", "Agent: Hi\nCustomer: who is this?\ncustomer: ok", "Agent: Hi"},
		{"affirmative reply", "Agent: Did you see our offer?\nYes.\nOkay!\nSure", "Agent: Did you see our offer?"},
		{"agent-prefixed affirmative kept", "Agent: Thanks\nAgent: Okay", "Agent: Thanks\nAgent: Okay"},
		{"unknown capitalized speaker", "Agent: Hi\nJohn Smith: hello\nAgent: bye", "Agent: Hi\nAgent: bye"},
		{"markdown labels", "**Agent:** Hi\n**Maria:** hello", "**Agent:** Hi"},
		{"blank lines removed", "\n  Agent: Hi  \n\n\r\nAgent: Bye\r\n", "Agent: Hi\nAgent: Bye"},
		{"unlabelled prose kept", "Hi Maria, how was the spring sale for you?", "Hi Maria, how was the spring sale for you?"},
		{"lowercase label kept", "Agent: Offer\nps: this is for you", "Agent: Offer\nps: this is for you"},
		{"times are not labels", "We open at 10:30 tomorrow", "We open at 10:30 tomorrow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Filter(tt.raw, "Maria Lopez"))
		})
	}
}

func TestSanitizeFallback(t *testing.T) {
	s := MustDefault()

	empty := s.Sanitize("Maria: yes\nCustomer: no", "Maria Lopez")
	assert.True(t, strings.HasPrefix(empty, "Hello Maria,"), empty)

	short := s.Sanitize("Hi.", "Maria Lopez")
	assert.Equal(t, empty, short)

	anonymous := s.Sanitize("", "")
	assert.True(t, strings.HasPrefix(anonymous, "Hello there,"), anonymous)
	assert.GreaterOrEqual(t, len(anonymous), 50)
}

func TestFallbackSurvivesSanitization(t *testing.T) {
	s := MustDefault()
	fallback := s.Fallback("Maria Lopez")
	assert.Equal(t, fallback, s.Sanitize(fallback, "Maria Lopez"))
}

func TestSpeakable(t *testing.T) {
	s := MustDefault()
	got := s.Speakable("Agent: Hi Maria\n**Sales Rep:** quick question\nThanks for your time")
	assert.Equal(t, "Hi Maria\nquick question\nThanks for your time", got)
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent_labels: [agent, narrator]
min_length: 10
fallback_template: "Hi {name}, quick call about our campaigns today."
`), 0o600))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"agent", "narrator"}, policy.AgentLabels)
	assert.Equal(t, 10, policy.MinLength)
	assert.Equal(t, DefaultPolicy().CustomerMarkers, policy.CustomerMarkers)

	s, err := NewSanitizer(policy)
	require.NoError(t, err)
	assert.Equal(t, "Narrator: Once upon a time", s.Sanitize("Narrator: Once upon a time\nRep: hello", "Maria"))
	assert.Equal(t, "Hi Maria, quick call about our campaigns today.", s.Sanitize("", "Maria"))
}

func TestLoadPolicyDefaultsAndErrors(t *testing.T) {
	policy, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), policy)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = NewSanitizer(Policy{AffirmativePattern: "("})
	assert.Error(t, err)
}

var agentTexts = []string{"Hi", "How are you today?", "Thanks", "We have a new offer", "Bye now", "Okay"}

func genAgentScript() gopter.Gen {
	return gen.SliceOfN(5, gen.IntRange(0, len(agentTexts)-1)).Map(func(idx []int) string {
		lines := make([]string, 0, len(idx))
		for _, i := range idx {
			lines = append(lines, "Agent: "+agentTexts[i])
		}
		return strings.Join(lines, "\n")
	}).SuchThat(func(s string) bool { return s != "" })
}

var mixedLines = []string{
	"Agent: Hi Maria", "Maria: hello", "Maria Lopez: sure", "Customer: who?", "yes",
	"Okay!", "Tell me more about the sale.", "Note: call later", "", "   ", "Agent: thanks",
}

func genMixedScript() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(mixedLines)-1)).Map(func(idx []int) string {
		lines := make([]string, 0, len(idx))
		for _, i := range idx {
			lines = append(lines, mixedLines[i])
		}
		return strings.Join(lines, "\n")
	})
}

func TestSanitizerProperties(t *testing.T) {
	s := MustDefault()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("agent-only scripts are unchanged", prop.ForAll(
		func(raw string) bool {
			return s.Sanitize(raw, "Maria Lopez") == raw
		},
		genAgentScript(),
	))

	properties.Property("sanitization is idempotent", prop.ForAll(
		func(raw string) bool {
			once := s.Sanitize(raw, "Maria Lopez")
			return s.Sanitize(once, "Maria Lopez") == once
		},
		genMixedScript(),
	))

	properties.Property("output is never empty and never contains customer-named lines", prop.ForAll(
		func(raw string) bool {
			out := s.Sanitize(raw, "Maria Lopez")
			if strings.TrimSpace(out) == "" {
				return false
			}
			for _, line := range strings.Split(out, "\n") {
				if strings.HasPrefix(line, "Maria:") || strings.HasPrefix(line, "Maria Lopez:") {
					return false
				}
			}
			return true
		},
		genMixedScript(),
	))

	properties.Property("agent lines keep their order", prop.ForAll(
		func(raw string) bool {
			var want []string
			for _, line := range strings.Split(raw, "\n") {
				if strings.HasPrefix(line, "Agent:") {
					want = append(want, line)
				}
			}
			if len(want) == 0 {
				return true
			}
			var got []string
			for _, line := range strings.Split(s.Sanitize(raw, "Maria Lopez"), "\n") {
				if strings.HasPrefix(line, "Agent:") {
					got = append(got, line)
				}
			}
			return strings.Join(got, "\n") == strings.Join(want, "\n")
		},
		genMixedScript(),
	))

	properties.TestingRun(t)
}
