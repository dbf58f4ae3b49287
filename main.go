package main

import "github.com/ftl/chancap/cmd"

func main() {
	cmd.Execute()
}
