package main

import "github.com/kozaktomas/identity-matcher/cmd"

func main() {
	cmd.Execute()
}
