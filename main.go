package main

import "github.com/mama-run/mama/cmd"

func main() {
	cmd.Execute()
}
