package main

import "github.com/dubclip/dubclip/internal/cli"

func main() {
	cli.Main()
}
