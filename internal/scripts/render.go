package scripts

import (
	"fmt"
	"strings"

	"github.com/aymerick/raymond"
)

// Params holds the identifiers injected into the bootstrap script template.
type Params struct {
	ServerModule  string
	ServerClass   string
	ServiceModule string
	ServiceClass  string
	ExtraSetup    string
}

var placeholders = []string{
	"$SERVER_MODULE$",
	"$SERVER_CLASS$",
	"$SERVICE_MODULE$",
	"$SERVICE_CLASS$",
	"$EXTRA_SETUP$",
}

// Render substitutes the five placeholder tokens into template. Substitution
// is literal text replacement: supplied values must not themselves contain
// placeholder tokens. Every placeholder must be present in the template and
// none may survive substitution.
func Render(template string, p Params) (string, error) {
	replacements := map[string]string{
		"$SERVER_MODULE$":  p.ServerModule,
		"$SERVER_CLASS$":   p.ServerClass,
		"$SERVICE_MODULE$": p.ServiceModule,
		"$SERVICE_CLASS$":  p.ServiceClass,
		"$EXTRA_SETUP$":    p.ExtraSetup,
	}

	rendered := template

	for _, token := range placeholders {
		if !strings.Contains(rendered, token) {
			return "", fmt.Errorf("%w: %s", ErrMissingPlaceholder, token)
		}
		rendered = strings.ReplaceAll(rendered, token, replacements[token])
	}

	for _, token := range placeholders {
		if strings.Contains(rendered, token) {
			return "", fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, token)
		}
	}

	return rendered, nil
}

// SplitClassPath splits a dotted identifier like "pkg.server.ThreadedServer"
// into its module path and class name at the last dot.
func SplitClassPath(classPath string) (module string, class string, err error) {
	idx := strings.LastIndex(classPath, ".")
	if idx <= 0 || idx == len(classPath)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidClassPath, classPath)
	}
	return classPath[:idx], classPath[idx+1:], nil
}

// LaunchCommand renders the shell command line that starts the staged script
// under the resolved interpreter from inside the staging directory.
func LaunchCommand(dir, interpreter, scriptPath string) (string, error) {
	tpl, err := raymond.Parse(launchTemplate)
	if err != nil {
		return "", err
	}

	cmd, err := tpl.Exec(map[string]string{
		"dir":         ShellQuote(dir),
		"interpreter": ShellQuote(interpreter),
		"script":      ShellQuote(scriptPath),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(cmd), nil
}

// ShellQuote wraps s in single quotes for safe interpolation into a POSIX
// shell command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
