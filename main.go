// ./main.go
package main

import (
	"github.com/xkilldash9x/uiprobe/cmd"
)

// main is the entry point for the uiprobe CLI.
func main() {
	cmd.Execute()
}
