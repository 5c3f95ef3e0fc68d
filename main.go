package main

import "github.com/ignisattend/ignis/cmd"

func main() {
	cmd.Execute()
}
