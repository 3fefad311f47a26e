package main

import "github.com/vietddude/sigitm-etl/internal/cli"

func main() {
	cli.Execute()
}
