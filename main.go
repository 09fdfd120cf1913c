// The main package for the canal executable.
package main

import (
	"github.com/canalenergetico/canal-web/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
