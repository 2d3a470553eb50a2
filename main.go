package main

import "github.com/brensch/sitereports/cmd"

func main() {
	cmd.Execute()
}
