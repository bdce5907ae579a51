package migrate

import (
	"github.com/temirov/pdsmigrate/internal/utils/flags"
)

// Mode selects how the migrate command obtains its input.
type Mode string

// Supported migration modes.
const (
	ModeInteractive Mode = "interactive"
	ModePipe        Mode = "pipe"
)

var modeAliases = map[string]string{
	"i": string(ModeInteractive),
	"p": string(ModePipe),
}

func newModeChoice(defaultMode Mode) *flags.ChoiceValue {
	return flags.NewChoiceValue(string(defaultMode), []string{string(ModeInteractive), string(ModePipe)}, modeAliases)
}

// ParseMode resolves a mode name or its single-letter alias.
func ParseMode(rawMode string) (Mode, error) {
	resolvedMode, resolveError := newModeChoice(ModeInteractive).Resolve(rawMode)
	if resolveError != nil {
		return "", resolveError
	}
	return Mode(resolvedMode), nil
}
