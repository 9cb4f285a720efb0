// cmd/hardworker/main.go
package main

import (
	"xdptriangle/app"
	"xdptriangle/consts"
)

func main() {
	app.Main(consts.Hardworker)
}
