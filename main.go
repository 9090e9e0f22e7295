// The main package for the harvester executable.
package main

import (
	"github.com/brandsignal/harvester/cmd"
)

func main() {
	cmd.Execute()
}
