package prometheus

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/goAccount/metrics/export/internaldefs"
)

// ContentType is the text exposition format version written by [Exporter].
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders console metrics in the Prometheus text format.
type Exporter struct {
	source internaldefs.Source
}

// New returns an exporter reading from source, usually a *goAccount.Console.
func New(source internaldefs.Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves [Exporter.Render] on GET and HEAD.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("Cache-Control", "no-store")
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(e.Render())
	})
}

// Render returns the current exposition. It is empty when metrics are
// disabled and no audit event was dropped.
func (e *Exporter) Render() []byte {
	if e == nil || e.source == nil {
		return nil
	}

	snap := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(4096)
	for _, def := range internaldefs.Counters {
		writeCounter(&buf, def, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.Histograms {
		writeHistogram(&buf, def, internaldefs.Cumulative(snap.Histograms[def.ID]))
	}
	writeCounter(&buf, internaldefs.AuditDropped, dropped)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, def internaldefs.Def, kind string) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s %s\n", def.Name, escapeHelp(def.Help), def.Name, kind)
}

func writeCounter(buf *bytes.Buffer, def internaldefs.Def, v uint64) {
	writeHeader(buf, def, "counter")
	fmt.Fprintf(buf, "%s %d\n", def.Name, v)
}

// writeHistogram emits cumulative buckets. Snapshots carry no sum, so
// _sum is always 0.
func writeHistogram(buf *bytes.Buffer, def internaldefs.Def, cumulative [internaldefs.NumBuckets]uint64) {
	writeHeader(buf, def, "histogram")
	for i, n := range cumulative {
		fmt.Fprintf(buf, "%s_bucket{le=%q} %d\n", def.Name, internaldefs.Label(i), n)
	}
	fmt.Fprintf(buf, "%s_sum 0\n%s_count %d\n", def.Name, def.Name, cumulative[internaldefs.NumBuckets-1])
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
