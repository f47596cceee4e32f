package main

import "github.com/synaptica-ai/automl/cmd/automlctl/cmd"

func main() {
	cmd.Execute()
}
