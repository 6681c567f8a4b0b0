// Command letsconfide decrypts and maintains TPM-sealed secrets files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "decrypt":
		err = runDecrypt(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "rewrap":
		err = runRewrap(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "letsconfide:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: letsconfide <decrypt|inspect|rewrap> [flags]")
}
