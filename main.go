package main

import "smileslot/cmd"

func main() {
	cmd.Execute()
}
