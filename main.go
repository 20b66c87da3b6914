package main

import "github.com/Lucifurge/Author-s-Asylum-Bot/cmd"

func main() {
	cmd.Execute()
}
