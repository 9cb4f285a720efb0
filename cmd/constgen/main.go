// cmd/constgen/main.go
// constgen renders const.toml into the C header the XDP objects are built
// against, so the kernel and user sides share one constant image.
package main

import (
	"bytes"
	"flag"
	"log"
	"os"

	"xdptriangle/consts"
)

func main() {
	in := flag.String("consts", "../const.toml", "constant image to render")
	out := flag.String("out", "const_gen.h", "header to write")
	flag.Parse()

	img, err := consts.Load(*in)
	if err != nil {
		log.Fatalf("constgen: %v", err)
	}

	var buf bytes.Buffer
	if err := consts.WriteCHeader(&buf, img, *in); err != nil {
		log.Fatalf("constgen: %v", err)
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		log.Fatalf("constgen: %v", err)
	}
}
