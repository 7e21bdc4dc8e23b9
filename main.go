package main

import "matching_service/cmd"

func main() {
	cmd.Execute()
}
