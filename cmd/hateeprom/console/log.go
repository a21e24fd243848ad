// Package console holds the terminal helpers of the hateeprom CLI.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
)

const PictoFinish = "🏁"
const PictoStop = "🚫"

var writer io.Writer = os.Stdout
var errWriter io.Writer = os.Stderr

// SetOutput redirects messages, mostly for tests.
func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

func Warnf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}
