// cmd/sensor/main.go
package main

import (
	"xdptriangle/app"
	"xdptriangle/consts"
)

func main() {
	app.Main(consts.Sensor)
}
