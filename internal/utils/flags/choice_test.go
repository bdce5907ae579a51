package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatChoiceUsage(t *testing.T) {
	testCases := []struct {
		name           string
		defaultChoice  string
		choices        []string
		description    string
		expectedOutput string
	}{
		{
			name:           "DefaultFirstChoice",
			defaultChoice:  "interactive",
			choices:        []string{"interactive", "pipe"},
			description:    "Migration mode.",
			expectedOutput: "`<INTERACTIVE|pipe>` Migration mode.",
		},
		{
			name:           "DefaultSecondChoice",
			defaultChoice:  "pipe",
			choices:        []string{"interactive", "pipe"},
			description:    "Read the migration from standard input.",
			expectedOutput: "`<interactive|PIPE>` Read the migration from standard input.",
		},
		{
			name:           "EmptyDescription",
			defaultChoice:  "alpha",
			choices:        []string{"alpha", "beta"},
			description:    "",
			expectedOutput: "`<ALPHA|beta>`",
		},
		{
			name:           "DuplicateChoicesIgnored",
			defaultChoice:  "beta",
			choices:        []string{"beta", "beta", "alpha", "alpha"},
			description:    "Select between options.",
			expectedOutput: "`<BETA|alpha>` Select between options.",
		},
		{
			name:           "WhitespaceTrimmed",
			defaultChoice:  "primary",
			choices:        []string{" primary ", " secondary "},
			description:    "Pick a palette.",
			expectedOutput: "`<PRIMARY|secondary>` Pick a palette.",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual := FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description)
			require.Equal(t, testCase.expectedOutput, actual)
		})
	}
}

func TestChoiceValueResolvesAliases(t *testing.T) {
	choiceValue := NewChoiceValue("interactive", []string{"interactive", "pipe"}, map[string]string{"i": "interactive", "p": "pipe"})
	require.Equal(t, "interactive", choiceValue.String())
	require.Equal(t, "choice", choiceValue.Type())

	require.NoError(t, choiceValue.Set("P"))
	require.Equal(t, "pipe", choiceValue.String())

	require.NoError(t, choiceValue.Set(" interactive "))
	require.Equal(t, "interactive", choiceValue.String())

	resolvedValue, resolveError := choiceValue.Resolve("i")
	require.NoError(t, resolveError)
	require.Equal(t, "interactive", resolvedValue)

	setError := choiceValue.Set("stdin")
	require.Error(t, setError)
	require.Contains(t, setError.Error(), "interactive|pipe")
	require.Equal(t, "interactive", choiceValue.String())
}
