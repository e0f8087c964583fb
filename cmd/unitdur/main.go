// Command unitdur parses, formats, and extracts canonical durations
// and runs scheduled jobs measuring them
package main

import (
	"fmt"
	"io"
	"os"
)

const usage = `Usage: unitdur <command> [flags] [args]

Commands:
  parse <text>...               print nanoseconds and canonical form
  format [--unit ns|ms] <n>...  print canonical form of a count
  read [file]                   extract tagged literals from file or stdin
  run [--env-prefix UNIT_] [--config-env UNIT_CONFIG]
                                run configured jobs until interrupted
`

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "parse":
		err = parseCmd(args[1:], stdout)
	case "format":
		err = formatCmd(args[1:], stdout)
	case "read":
		err = readCmd(args[1:], stdin, stdout)
	case "run":
		err = runCmd(args[1:])
	case "help", "-h", "--help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unitdur: unknown command %q\n%s", args[0], usage)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "unitdur %s: %v\n", args[0], err)
		return 1
	}
	return 0
}
