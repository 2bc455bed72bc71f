package main

import "sitepilot/cmd"

func main() {
	cmd.Execute()
}
