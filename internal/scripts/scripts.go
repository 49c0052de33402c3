// Package scripts renders the remote bootstrap artifacts: the server
// bootstrap script (literal placeholder substitution, see Render) and the
// launch command line (handlebars).
package scripts

import (
	_ "embed"
)

// ServerScript is the default bootstrap script template. When executed on the
// remote side it binds the injected server class to a loopback ephemeral port,
// reports the chosen port as a single stdout line, then blocks on stdin until
// end-of-stream as its exit signal. The staged directory removes itself on
// normal interpreter exit.
//
//go:embed templates/deployed-server.py.tpl
var ServerScript string

//go:embed templates/launch.hbs
var launchTemplate string
