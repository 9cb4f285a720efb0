// cmd/xdpreplay/main.go
// xdpreplay runs a role's classifier over every frame of a capture, either
// the user-space model or the compiled object through BPF_PROG_TEST_RUN,
// and writes the frames it transmits or passes to a pcapng file.
package main

import (
	"fmt"
	"os"

	"xdptriangle/bpf"
	"xdptriangle/consts"
	"xdptriangle/fastpath"

	"github.com/cilium/ebpf/rlimit"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	role   string
	consts string
	in     string
	out    string
	kernel bool
	object string
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "xdpreplay --in capture.pcap",
		Short:        "Replay a capture through an XDP role classifier",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.role, "role", "hardworker", "classifier to run: logger, hardworker or sensor")
	f.StringVar(&o.consts, "consts", "../const.toml", "constant image")
	f.StringVar(&o.in, "in", "", "input pcap or pcapng")
	f.StringVar(&o.out, "out", "", "write passed and transmitted frames to this pcapng")
	f.BoolVar(&o.kernel, "kernel", false, "run the compiled object instead of the model (needs root)")
	f.StringVar(&o.object, "object", "", "object for --kernel (default bpf/<role>.o)")
	cmd.MarkFlagRequired("in")
	return cmd
}

func run(o *options) error {
	role, err := consts.ParseRole(o.role)
	if err != nil {
		return err
	}
	img, err := consts.Load(o.consts)
	if err != nil {
		return err
	}

	var eng engine
	if o.kernel {
		k, err := loadKernel(role, img, o.object)
		if err != nil {
			return err
		}
		defer k.Close()
		eng = k
	} else {
		prog, err := fastpath.NewProgram(img, log.StandardLogger())
		if err != nil {
			return err
		}
		eng = &modelEngine{role: role, prog: prog}
	}

	in, err := os.Open(o.in)
	if err != nil {
		return err
	}
	defer in.Close()

	var out *os.File
	if o.out != "" {
		if out, err = os.Create(o.out); err != nil {
			return err
		}
		defer out.Close()
	}

	rep, err := replay(in, out, eng, img.Data.Size, os.Stdout)
	if err != nil {
		return err
	}
	rep.write(os.Stdout)
	return nil
}

func loadKernel(role consts.Role, img consts.Image, object string) (*kernelEngine, error) {
	if object == "" {
		object = "bpf/" + bpf.ObjectFile(role)
	}
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock limit: %w", err)
	}
	spec, err := bpf.LoadSpec(object, role, img)
	if err != nil {
		return nil, err
	}
	r, err := bpf.NewRunner(spec, role)
	if err != nil {
		return nil, err
	}
	return &kernelEngine{Runner: r}, nil
}
