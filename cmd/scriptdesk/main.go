package main

import "github.com/nfrund/scriptdesk/cmd/scriptdesk/cmd"

func main() {
	cmd.Execute()
}
