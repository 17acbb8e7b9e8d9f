// Package main provides the neorom command.
package main

import "github.com/neobench/neorom/neorom/cmd"

func main() {
	cmd.Execute()
}
