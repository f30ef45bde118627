// Package flagx extracts a known subset of command-line flags so that
// several parsers (the config loader and the cobra command tree) can read
// the same argument list without rejecting each other's flags.
package flagx

import (
	"flag"
	"strings"
)

// ConfigFlags are the spellings of the config file flag.
var ConfigFlags = []string{"-c", "--c", "-config", "--config"}

// FilterArgs keeps only the flags named in allowedFlags, with their values.
//
// Both "-flag value" and "-flag=value" forms are recognized. A token that
// starts with "-" is never taken as a value. Order is preserved and the
// result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}
	return filtered
}

// ConfigPath returns the value of the last -c/-config flag in args, or "".
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(discard{})
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, ConfigFlags))

	return path
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
