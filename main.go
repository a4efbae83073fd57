// The main package for the difflog executable.
package main

import (
	"github.com/JakeFAU/difflog/cmd"
)

func main() {
	cmd.Execute()
}
