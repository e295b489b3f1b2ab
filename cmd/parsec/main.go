package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "parsec"}

	root.AddCommand(serveCMD(), investigateCMD())
	_ = root.Execute()
}
