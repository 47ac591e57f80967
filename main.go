package main

import "github.com/keeferrourke/rhpman-sim/cmd"

func main() {
	cmd.Execute()
}
