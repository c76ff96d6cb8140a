package main

import "github.com/jaredwolff/patina-go/cmd"

func main() {
	cmd.Execute()
}
