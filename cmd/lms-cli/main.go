package main

import (
	"os"

	"snulms/cmd/lms-cli/commands"
	"snulms/lib/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()
	os.Exit(commands.ExecuteContext(ctx))
}
