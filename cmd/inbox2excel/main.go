package main

import "inbox2excel/cmd/inbox2excel/cmd"

func main() {
	cmd.Execute()
}
