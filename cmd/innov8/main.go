// Command innov8 runs the dashboard data pipeline: the HTTP server with its
// scheduled refresh, and one-shot update, reset, forecast and export runs.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
