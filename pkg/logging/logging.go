package logging

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
)

// New builds the service logger. Messages are rendered as single-line JSON
// on stdout; pretty mode indents them for local development.
func New(pretty bool) ectologger.Logger {
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		var (
			out []byte
			err error
		)
		if pretty {
			out, err = json.MarshalIndent(msg, "", "  ")
		} else {
			out, err = json.Marshal(msg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed to marshal log message: %v\n", err)
			return
		}
		fmt.Fprintln(os.Stdout, string(out))
	})
}
