package main

import "github.com/nplabs/meshrouter/cmd"

func main() {
	cmd.Execute()
}
