package main

import (
	"log"

	"github.com/flarebyte/datamove/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
