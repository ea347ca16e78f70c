package main

import "auth-service/cmd"

func main() {
	cmd.Execute()
}
