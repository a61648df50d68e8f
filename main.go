package main

import "github.com/encodeous/lattice/cmd"

func main() {
	cmd.Execute()
}
