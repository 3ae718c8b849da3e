package main

import (
	"math/rand"
	"time"

	"github.com/luma/samaio/cmd"
)

func main() {
	// Channel names are drawn from math/rand
	rand.Seed(time.Now().UnixNano())

	cmd.Execute()
}
