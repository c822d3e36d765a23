package main

import (
	"fmt"
	"os"

	"github.com/PLSysSec/wave-sub000/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
