package console

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func Exit(code int, msg string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// ExitErr exits with code 1, describing what failed before the red error.
func ExitErr(err error, what string, args ...any) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf("%s: %s", fmt.Sprintf(what, args...), Red(err)), 1)
}
