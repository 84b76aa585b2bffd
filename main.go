package main

import "github.com/kozaktomas/gatewatch/cmd"

func main() {
	cmd.Execute()
}
