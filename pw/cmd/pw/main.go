package main

import (
	"github.com/pipewright/pipewright/pw/cmd/pw/commands"
	_ "github.com/pipewright/pipewright/pw/cmd/pw/commands/history"
	_ "github.com/pipewright/pipewright/pw/cmd/pw/commands/initialize"
	_ "github.com/pipewright/pipewright/pw/cmd/pw/commands/run"
	_ "github.com/pipewright/pipewright/pw/cmd/pw/commands/serve"
	_ "github.com/pipewright/pipewright/pw/cmd/pw/commands/validate"
)

func main() {
	commands.Execute()
}
