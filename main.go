package main

import "github.com/killallgit/tripwire/cmd"

func main() {
	cmd.Execute()
}
