package migrate_test

import (
	"github.com/temirov/pdsmigrate/internal/credentials"
	"github.com/temirov/pdsmigrate/internal/migrate"
)

// scriptedPrompter answers prompts from a fixed script and records every
// prompt and validation message it saw.
type scriptedPrompter struct {
	answers            []string
	confirmations      []bool
	prompts            []string
	validationMessages []string
	enterPresses       int
}

func newScriptedPrompter(answers []string, confirmations ...bool) *scriptedPrompter {
	return &scriptedPrompter{answers: answers, confirmations: confirmations}
}

func (prompter *scriptedPrompter) Input(prompt string, defaultValue string, validate migrate.Validator) (string, error) {
	prompter.prompts = append(prompter.prompts, prompt)
	for {
		answer, answerError := prompter.next()
		if answerError != nil {
			return "", answerError
		}
		if len(answer) == 0 {
			answer = defaultValue
		}
		if validate == nil {
			return answer, nil
		}
		if message := validate(answer); len(message) > 0 {
			prompter.validationMessages = append(prompter.validationMessages, message)
			continue
		}
		return answer, nil
	}
}

func (prompter *scriptedPrompter) Password(prompt string, validate migrate.Validator) (string, error) {
	return prompter.Input(prompt, "", validate)
}

func (prompter *scriptedPrompter) Confirm(prompt string) (bool, error) {
	prompter.prompts = append(prompter.prompts, prompt)
	if len(prompter.confirmations) == 0 {
		return false, migrate.ErrPromptClosed
	}
	confirmation := prompter.confirmations[0]
	prompter.confirmations = prompter.confirmations[1:]
	return confirmation, nil
}

func (prompter *scriptedPrompter) WaitForEnter(prompt string) error {
	prompter.enterPresses++
	return nil
}

func (prompter *scriptedPrompter) next() (string, error) {
	if len(prompter.answers) == 0 {
		return "", migrate.ErrPromptClosed
	}
	answer := prompter.answers[0]
	prompter.answers = prompter.answers[1:]
	return answer, nil
}

func (prompter *scriptedPrompter) remainingAnswers() int {
	return len(prompter.answers)
}

func testCredentials() credentials.Credentials {
	return credentials.Credentials{
		OldPDSURL:   testOldPDSURLConstant,
		NewPDSURL:   testNewPDSURLConstant,
		OldHandle:   testOldHandleConstant,
		OldPassword: testOldPasswordConstant,
		NewHandle:   credentials.SingleHandle(testNewHandleConstant),
		NewEmail:    testNewEmailConstant,
		NewPassword: testNewPasswordConstant,
		InviteCode:  testInviteCodeConstant,
	}
}

// singleHandleAnswers walks the interactive credential prompts for a handle
// that lives under the new PDS hostname.
func singleHandleAnswers() []string {
	return []string{
		"",
		"@" + testOldHandleConstant,
		testOldPasswordConstant,
		testInviteCodeConstant,
		"b.com",
		testNewHandleConstant,
		testNewEmailConstant,
		testNewPasswordConstant,
		testNewPasswordConstant,
	}
}
