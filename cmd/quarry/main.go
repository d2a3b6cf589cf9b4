package main

import "github.com/aweris/quarry/cmd/quarry/cmd"

func main() {
	cmd.Execute()
}
