// Command stratum is the CLI entry point, wiring kong verbs onto the
// executor/check packages the same way cmd/lint wires kong onto
// lint.Lint.
package main

import (
	"github.com/alecthomas/kong"
)

var cli struct {
	Migrate  MigrateCmd  `cmd:"" help:"Run a migration plan to completion."`
	Validate ValidateCmd `cmd:"" help:"Validate a migration plan without connecting to any source or destination."`
	TestConn TestConnCmd `cmd:"" name:"test-conn" help:"Open every connection a plan and connections file name and report reachability."`
	Progress ProgressCmd `cmd:"" help:"Print the last checkpoint recorded for a run's items."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("stratum"),
		kong.Description("Declarative, resumable data migration engine."),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
