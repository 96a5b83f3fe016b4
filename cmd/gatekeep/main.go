// Command gatekeep is the gateway's entrypoint: a content-safety proxy
// sitting in front of OpenAI-compatible chat completions.
package main

import "github.com/sentinelops/gatekeep/cmd/gatekeep/cmd"

func main() {
	cmd.Execute()
}
