package main

import "github.com/minelauncher/mcfetch/cmd"

func main() {
	cmd.Execute()
}
