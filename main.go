package main

import "github.com/arclabs/arc/cmd"

func main() {
	cmd.Execute()
}
