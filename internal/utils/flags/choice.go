// Package flags provides helpers for binding constrained flag values to Cobra commands.
package flags

import (
	"fmt"
	"strings"
)

const (
	choicePlaceholderPrefix  = "<"
	choicePlaceholderSuffix  = ">"
	choiceSeparatorLiteral   = "|"
	choiceUsageEmptyTemplate = "`%s`"
	choiceUsageFullTemplate  = "`%s` %s"
	unknownChoiceTemplate    = "unsupported value %q (expected one of %s)"
	choiceValueTypeConstant  = "choice"
)

// FormatChoiceUsage builds a usage string where the default option is capitalized inside a placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	placeholder := buildChoicePlaceholder(defaultChoice, choices)
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(choiceUsageFullTemplate, placeholder, description)
}

// ChoiceValue is a pflag.Value accepting a fixed set of canonical values and their aliases.
type ChoiceValue struct {
	value   string
	aliases map[string]string
	choices []string
}

// NewChoiceValue builds a ChoiceValue. aliases maps every accepted spelling,
// canonical names included, to its canonical value.
func NewChoiceValue(defaultChoice string, choices []string, aliases map[string]string) *ChoiceValue {
	normalizedAliases := make(map[string]string, len(aliases)+len(choices))
	for _, choice := range choices {
		normalizedAliases[strings.ToLower(strings.TrimSpace(choice))] = choice
	}
	for alias, canonical := range aliases {
		normalizedAliases[strings.ToLower(strings.TrimSpace(alias))] = canonical
	}
	return &ChoiceValue{value: defaultChoice, aliases: normalizedAliases, choices: choices}
}

// Resolve maps a raw value to its canonical choice.
func (choiceValue *ChoiceValue) Resolve(rawValue string) (string, error) {
	canonical, known := choiceValue.aliases[strings.ToLower(strings.TrimSpace(rawValue))]
	if !known {
		return "", fmt.Errorf(unknownChoiceTemplate, rawValue, strings.Join(choiceValue.choices, choiceSeparatorLiteral))
	}
	return canonical, nil
}

// Set implements pflag.Value.
func (choiceValue *ChoiceValue) Set(rawValue string) error {
	canonical, resolveError := choiceValue.Resolve(rawValue)
	if resolveError != nil {
		return resolveError
	}
	choiceValue.value = canonical
	return nil
}

// String implements pflag.Value.
func (choiceValue *ChoiceValue) String() string {
	return choiceValue.value
}

// Type implements pflag.Value.
func (choiceValue *ChoiceValue) Type() string {
	return choiceValueTypeConstant
}

func buildChoicePlaceholder(defaultChoice string, choices []string) string {
	highlightedChoices := highlightDefaultChoice(defaultChoice, choices)
	return choicePlaceholderPrefix + strings.Join(highlightedChoices, choiceSeparatorLiteral) + choicePlaceholderSuffix
}

func highlightDefaultChoice(defaultChoice string, choices []string) []string {
	normalizedDefault := strings.ToLower(strings.TrimSpace(defaultChoice))
	highlighted := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))

	for _, choice := range choices {
		trimmedChoice := strings.TrimSpace(choice)
		if len(trimmedChoice) == 0 {
			continue
		}

		normalizedChoice := strings.ToLower(trimmedChoice)
		if _, exists := seen[normalizedChoice]; exists {
			continue
		}

		displayValue := trimmedChoice
		if normalizedChoice == normalizedDefault {
			displayValue = strings.ToUpper(trimmedChoice)
		}

		highlighted = append(highlighted, displayValue)
		seen[normalizedChoice] = struct{}{}
	}

	return highlighted
}
