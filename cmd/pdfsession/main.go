// Command pdfsession runs PDF operations inside a single document session.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
