package main

import (
	"steamcommunity/cmd/steamcommunity-cli/commands"
	"steamcommunity/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
