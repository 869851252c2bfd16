package main

import "github.com/pypeclub/tmplbuild/cmd"

func main() {
	cmd.Execute()
}
