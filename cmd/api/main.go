//	@title			Uploads API
//	@version		1.0
//	@description	Stores uploaded files in object storage and records their metadata.
//
//	@host		localhost:8080
//	@BasePath	/

package main

import (
	"os"

	cliruntime "github.com/tomasbasham/cli-runtime"

	"github.com/radif/uploads/internal/cmd"
)

func main() {
	command := cmd.NewRootCommand()
	if code := cliruntime.Run(command); code != 0 {
		os.Exit(code)
	}
}
