package main

import "github.com/kozaktomas/lookalike/cmd"

func main() {
	cmd.Execute()
}
