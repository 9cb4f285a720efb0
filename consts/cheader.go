// consts/cheader.go
package consts

import (
	"fmt"
	"io"
	"strings"
	"text/template"
)

var headerTmpl = template.Must(template.New("const_gen.h").Funcs(template.FuncMap{
	"macInit": func(m MAC) string {
		parts := make([]string, len(m))
		for i, b := range m {
			parts[i] = fmt.Sprintf("0x%02x", b)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	},
	"hex32": func(ip IPv4) string { return fmt.Sprintf("0x%08xU", ip.Uint32()) },
}).Parse(`/* Code generated by constgen from {{.Source}}. DO NOT EDIT. */

#ifndef __CONST_GEN_H
#define __CONST_GEN_H

#define MAC_LOGGER     {{macInit .MAC.Logger}}
#define MAC_HARDWORKER {{macInit .MAC.Hardworker}}
#define MAC_SENSOR     {{macInit .MAC.Sensor}}

#define IP_LOGGER     {{hex32 .IP.Logger}} /* {{.IP.Logger}} */
#define IP_HARDWORKER {{hex32 .IP.Hardworker}} /* {{.IP.Hardworker}} */
#define IP_SENSOR     {{hex32 .IP.Sensor}} /* {{.IP.Sensor}} */

#define MARK_TOS  0x{{printf "%02x" .Mark.TOS}}
#define MARK_PORT {{.Mark.Port}}

#define DATA_MTU      {{.Data.MTU}}
#define DATA_SIZE     {{.Data.Size}}
#define DATA_SENTINEL {{.Data.Sentinel}}

#define RING_SLOTS        {{.RingSlots}}
#define RING_MAX_CAPACITY {{.MaxRingCapacity}}
#define RING_CAPACITY \
	(RING_SLOTS * DATA_SIZE < RING_MAX_CAPACITY ? RING_SLOTS * DATA_SIZE : RING_MAX_CAPACITY)

_Static_assert((MARK_TOS & 0x01) == 0, "MARK_TOS: reserved low bit must be zero");
_Static_assert((MARK_TOS & 0xe0) != 0x00, "MARK_TOS: precedence 000 is a defined class");
_Static_assert((MARK_TOS & 0xe0) != 0x20, "MARK_TOS: precedence 001 is a defined class");
_Static_assert(DATA_SIZE % 8 == 0, "DATA_SIZE must be a multiple of 8");
_Static_assert(DATA_SIZE + 20 + 20 <= DATA_MTU, "DATA_SIZE does not fit the MTU");
_Static_assert(RING_CAPACITY <= RING_MAX_CAPACITY, "ring larger than 256 KiB");
_Static_assert((RING_CAPACITY & (RING_CAPACITY - 1)) == 0, "ring capacity must be a power of two");
_Static_assert(RING_CAPACITY % {{.PageSize}} == 0, "ring capacity must be page aligned");

#endif /* __CONST_GEN_H */
`))

// WriteCHeader renders img as the compile-time constant header consumed by
// the XDP programs. source names the input file in the banner.
func WriteCHeader(w io.Writer, img Image, source string) error {
	if err := img.Validate(); err != nil {
		return err
	}
	return headerTmpl.Execute(w, struct {
		Image
		Source                               string
		RingSlots, MaxRingCapacity, PageSize int
	}{img, source, RingSlots, MaxRingCapacity, PageSize})
}
