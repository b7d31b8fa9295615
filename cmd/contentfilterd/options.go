package main

import (
	"flag"
	"fmt"
	"os"
)

// options holds the flags this process bootstraps with. Command-line
// parsing proper is named in spec.md §1 as an external collaborator; this
// type and [parseOptions] are the minimal seam a real CLI parser plugs
// into, following the stdlib-[flag] shape the teacher's own cmd/next
// bootstrap uses for its own subset of flags.
type options struct {
	// configPath is the path to the XML configuration document described
	// in spec.md §6.
	configPath string

	// pluginDirs are the absolute, insertion-ordered library-search paths
	// consulted by [filterobj.Registry.LoadPlugins], per spec.md §4.3.
	pluginDirs []string

	// listenAddr is the address the /debug status endpoint and the
	// Prometheus metrics endpoint bind to.
	listenAddr string

	// logFile is the rotated filterlog output path; empty means stdout.
	logFile string

	// verbose raises the filter logger to debug level.
	verbose bool

	// serviceControlAction is one of "install", "uninstall", "start",
	// "stop", "restart", "status", or "run" (run under the service
	// manager). Empty, the default, runs the daemon directly in the
	// foreground.
	serviceControlAction string
}

// parseOptions parses args (typically os.Args[1:]) into an options value.
func parseOptions(args []string) (opts options, err error) {
	fs := flag.NewFlagSet("contentfilterd", flag.ContinueOnError)

	fs.StringVar(&opts.configPath, "config", "/etc/contentfilterd/contentfilter.xml",
		"path to the content filter configuration document")
	fs.StringVar(&opts.listenAddr, "listen", "127.0.0.1:9080",
		"address for the /debug status and /metrics endpoints")
	fs.StringVar(&opts.logFile, "log-file", "",
		"path to the rotated filter-match log file; empty means stdout")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable debug-level logging")
	fs.StringVar(&opts.serviceControlAction, "service", "",
		"service control action: install, uninstall, start, stop, restart, status")

	var pluginDirFlags stringSliceFlag
	fs.Var(&pluginDirFlags, "plugin-dir",
		"directory to search for filter-object plug-ins (.so files); may be repeated")

	if err = fs.Parse(args); err != nil {
		return options{}, fmt.Errorf("parsing flags: %w", err)
	}

	opts.pluginDirs = append([]string(pluginDirFlags), defaultPluginDir)

	return opts, nil
}

// defaultPluginDir is the built-in plug-in search path checked last, per
// spec.md §4.3's "a built-in default path checked last."
const defaultPluginDir = "/usr/lib/contentfilterd/plugins"

// stringSliceFlag implements [flag.Value] to accept a repeated flag,
// preserving insertion order as spec.md §4.3 requires for search-path
// evaluation.
type stringSliceFlag []string

// String implements [flag.Value].
func (s *stringSliceFlag) String() (text string) {
	if s == nil {
		return ""
	}

	return fmt.Sprint([]string(*s))
}

// Set implements [flag.Value].
func (s *stringSliceFlag) Set(value string) (err error) {
	*s = append(*s, value)

	return nil
}

// exitCode mirrors the teacher's osutil exit-code convention: 0 for
// success, 1 for a failure the operator must act on.
const (
	exitCodeSuccess = 0
	exitCodeFailure = 1
)

// fatalf prints an error to stderr and exits with exitCodeFailure,
// mirroring the boot-path half of spec.md §7's error propagation policy:
// configuration errors at boot abort the process.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitCodeFailure)
}
