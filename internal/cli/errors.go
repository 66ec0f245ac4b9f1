package cli

import (
	"errors"
	"fmt"

	"github.com/raysh454/iro/internal/api"
)

// errUsage marks errors caused by bad flags or arguments.
var errUsage = errors.New("usage")

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// describe renders err for the terminal. Backend failures use the short
// message shown to end users.
func describe(err error) string {
	if api.KindOf(err) != api.KindUnknown {
		return api.UserMessage(err)
	}
	return err.Error()
}
