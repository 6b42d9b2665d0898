package ui

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrInterrupted is returned when the operator presses Ctrl-C at a prompt.
var ErrInterrupted = errors.New("prompt interrupted")

// EditorOptions configures PromptEditor.
type EditorOptions struct {
	// Template is the initial file content.
	Template string
	// Command overrides $VISUAL/$EDITOR when set, e.g. git's core.editor.
	Command string
	// FileName is the temp file pattern, e.g. "*.env", so editors pick a syntax.
	FileName string
}

func askOne(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
	err := survey.AskOne(p, response, opts...)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrInterrupted
	}
	return err
}

// PromptYesNo prompts the user for a yes/no answer
func (u *UI) PromptYesNo(prompt string, defaultYes bool) (bool, error) {
	if u.nonInteractive {
		return defaultYes, nil
	}

	var result bool
	p := &survey.Confirm{
		Message: prompt,
		Default: defaultYes,
	}

	err := askOne(p, &result)
	return result, err
}

// PromptInput prompts the user for text input. validate may be nil. In
// non-interactive mode the default is validated and returned.
func (u *UI) PromptInput(prompt, defaultValue string, validate func(string) error) (string, error) {
	if u.nonInteractive {
		if validate != nil {
			if err := validate(defaultValue); err != nil {
				return "", fmt.Errorf("no usable answer for %q in non-interactive mode: %w", prompt, err)
			}
		}
		return defaultValue, nil
	}

	var opts []survey.AskOpt
	if validate != nil {
		opts = append(opts, survey.WithValidator(func(ans interface{}) error {
			s, _ := ans.(string)
			return validate(s)
		}))
	}

	var result string
	p := &survey.Input{
		Message: prompt,
		Default: defaultValue,
	}

	err := askOne(p, &result, opts...)
	return result, err
}

// PromptSelect prompts the user to select from a list and returns the index
// of the chosen option.
func (u *UI) PromptSelect(prompt string, options []string, defaultIndex int) (int, error) {
	if defaultIndex < 0 || defaultIndex >= len(options) {
		return -1, fmt.Errorf("default option %d out of range", defaultIndex)
	}
	if u.nonInteractive {
		return defaultIndex, nil
	}

	var selected string
	p := &survey.Select{
		Message: prompt,
		Options: options,
		Default: options[defaultIndex],
	}

	if err := askOne(p, &selected); err != nil {
		return -1, err
	}

	// Find the index of the selected option
	for i, opt := range options {
		if opt == selected {
			return i, nil
		}
	}

	return -1, fmt.Errorf("selected option not found")
}

// PromptEditor opens a text editor on opts.Template and returns the saved
// content. In non-interactive mode the template is returned unchanged.
func (u *UI) PromptEditor(prompt string, opts EditorOptions) (string, error) {
	if u.nonInteractive {
		return opts.Template, nil
	}

	var result string
	p := &survey.Editor{
		Message:       prompt,
		Default:       opts.Template,
		AppendDefault: true,
		HideDefault:   true,
		Editor:        opts.Command,
		FileName:      opts.FileName,
	}

	err := askOne(p, &result)
	return result, err
}
