package main

import cmd "github.com/rohmanhakim/saas-intel/internal/cli"

func main() {
	cmd.Execute()
}
