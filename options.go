package zerodeploy

import (
	"fmt"
	"strings"

	"zerodeploy/internal/config"
	"zerodeploy/internal/scripts"
)

// Options configures a single deployment. ServerClass, ServiceClass and
// CodeDir are required; everything else has a default.
type Options struct {
	// ServerClass is the dotted path of the listener implementation to
	// start on the remote side, e.g. "pkg.server.ThreadedServer".
	ServerClass string

	// ServiceClass is the dotted path of the service implementation the
	// listener exposes, e.g. "pkg.svc.Service".
	ServiceClass string

	// CodeDir is the local directory tree staged on the remote host. It
	// must contain the packages the two class paths refer to.
	CodeDir string

	// Script overrides the bootstrap script template. It must carry all
	// five placeholder tokens. Defaults to the embedded template.
	Script string

	// ExtraSetup is an optional code fragment spliced into the script
	// before the listener starts.
	ExtraSetup string

	// Interpreter is an explicit remote interpreter command. When set,
	// probing is skipped entirely.
	Interpreter string

	// PythonVersion seeds interpreter probing ("3.11" probes python3.11,
	// then python3, then the configured fallback). Defaults to the
	// ZERODEPLOY_PYTHON_VERSION environment setting.
	PythonVersion string
}

func (o *Options) applyDefaults() {
	if o.Script == "" {
		o.Script = scripts.ServerScript
	}
	if o.Interpreter == "" {
		o.Interpreter = config.Config.DefaultInterpreter
	}
	if o.PythonVersion == "" {
		o.PythonVersion = config.Config.PythonVersion
	}
}

func (o *Options) validate() error {
	if o.ServerClass == "" {
		return fmt.Errorf("%w: ServerClass is required", ErrInvalidOptions)
	}
	if o.ServiceClass == "" {
		return fmt.Errorf("%w: ServiceClass is required", ErrInvalidOptions)
	}
	if o.CodeDir == "" {
		return fmt.Errorf("%w: CodeDir is required", ErrInvalidOptions)
	}
	return nil
}

// interpreterCandidates lists probe targets in preference order: exact
// major.minor, major only, then the configured fallback.
func (o *Options) interpreterCandidates() []string {
	var candidates []string

	if v := o.PythonVersion; v != "" {
		candidates = append(candidates, "python"+v)
		if major, _, found := strings.Cut(v, "."); found && major != "" {
			candidates = append(candidates, "python"+major)
		}
	}
	if fallback := config.Config.FallbackInterpreter; fallback != "" {
		candidates = append(candidates, fallback)
	}

	seen := make(map[string]bool, len(candidates))
	deduped := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			deduped = append(deduped, c)
		}
	}
	return deduped
}
