// Command storefront is a terminal client for the storefront backend.
package main

import "github.com/storefront-dev/storefront/cmd/storefront/cmd"

func main() {
	cmd.Execute()
}
