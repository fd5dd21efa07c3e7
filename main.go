package main

import "github.com/ValentinKolb/gridlock/cmd"

func main() {
	cmd.Execute()
}
