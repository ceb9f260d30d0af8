package restriction

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

// Dump writes a human-readable view of the controller for operators
func (c *Controller) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	now := c.now()

	fmt.Fprintln(bw, "BACKGROUND RESTRICTION LEVEL SETTINGS")
	fmt.Fprintf(bw, "  ready=%t queued=%d active_keys=%d listeners=%d\n",
		c.Ready(), c.lane.Len(), c.gate.Len(), c.listeners.Len())
	fmt.Fprintf(bw, "  trackers=[%s]\n", strings.Join(c.trackers.Names(), ", "))

	for _, st := range c.store.Snapshot() {
		fmt.Fprintf(bw, "  %s/%d %s(%s)", st.PackageName, st.UID, st.Current, st.Reason)
		if st.Previous != types.LevelUnknown {
			fmt.Fprintf(bw, "/%s", st.Previous)
		}
		fmt.Fprintf(bw, " %s ago", now.Sub(st.ChangedAt).Truncate(time.Millisecond))
		if c.gate.IsActive(st.UID, st.PackageName) {
			bw.WriteString(" active")
			if c.gate.Pending(st.UID, st.PackageName) {
				bw.WriteString(" pending")
			}
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
