package main

import "github.com/jrsteele09/fb-page-poster/cmd/server/commands"

func main() {
	commands.Execute()
}
