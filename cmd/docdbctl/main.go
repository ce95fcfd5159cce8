package main

import "github.com/docdb/docdbd/cmd/docdbctl/commands"

func main() {
	commands.Execute()
}
