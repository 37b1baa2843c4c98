// Command routeplan serves the route planning API and solves scenarios offline.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
