package main

import "tagforge/cmd"

func main() {
	cmd.Execute()
}
