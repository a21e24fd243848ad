package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes = "y"
	No  = "n"
)

// Confirm asks a yes/no question defaulting to no.
func Confirm(question string) (bool, error) {
	answer, err := Prompt(question, No, Yes)
	if err != nil {
		return false, err
	}
	return answer == Yes, nil
}

// Prompt asks question and returns the matching constraint. The first
// constraint is the default and is shown upper case.
func Prompt(question string, constraints ...string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString(question)
	prompt.WriteString(" [")
	prompt.WriteString(strings.ToUpper(constraints[0]))
	for _, c := range constraints[1:] {
		prompt.WriteString("/")
		prompt.WriteString(c)
	}
	prompt.WriteString("]: ")
	rl, err := readline.New(prompt.String())
	if err != nil {
		return "", err
	}
	defer rl.Close()
	response, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return match(response, constraints), nil
}

func match(response string, constraints []string) string {
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return c
		}
	}
	return constraints[0]
}
