package main

import "github.com/kozaktomas/face-triage/cmd"

func main() {
	cmd.Execute()
}
