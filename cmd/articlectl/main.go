package main

import (
	"fmt"
	"os"
	"time"

	"articled/internal/ctl"
)

func main() {
	serverURL := os.Getenv("ARTICLED_SERVER")
	if serverURL == "" {
		serverURL = "http://127.0.0.1:8080"
	}
	opts := &ctl.Options{ServerURL: serverURL, Timeout: 5 * time.Minute}
	if err := ctl.BuildRootCmd(opts).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
