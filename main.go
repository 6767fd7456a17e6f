// The main package for the linkanalyzer executable.
package main

import "github.com/JakeFAU/broken-link-analyzer/cmd"

func main() {
	cmd.Execute()
}
