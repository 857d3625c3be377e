// The main package for the pagefinder executable.
package main

import (
	"github.com/loxal/page-finder-service/cmd"
)

func main() {
	cmd.Execute()
}
