package main

import "github.com/zk-armor/openclaw/cmd"

func main() {
	cmd.Execute()
}
