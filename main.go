package main

import "github.com/universal-adapter/hubctl/cmd"

func main() {
	cmd.Execute()
}
