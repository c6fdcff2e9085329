package main

import "github.com/hnpf/MTCLI/cmd/mtcli"

func main() {
	mtcli.Execute()
}
