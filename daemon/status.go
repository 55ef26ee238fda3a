package daemon

import (
	"sort"

	"github.com/prettymuchbryce/treewatch/internal/ipc"
)

// HandleStatus returns the current daemon status.
func (c *Controller) HandleStatus() ipc.StatusData {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := ipc.StatusData{
		InstanceID:  c.instance,
		ConfigPath:  c.configPath,
		ConfigValid: true,
		Enabled:     c.manager != nil,
		Roots:       []ipc.RootStatus{},
	}
	if c.manager == nil {
		return status
	}

	for _, info := range c.manager.Roots() {
		w, ok := c.watches[info.Path]
		if !ok {
			continue
		}
		status.Backend = string(info.Backend)
		status.WatchCount += info.WatchCount

		rs := ipc.RootStatus{
			Root:          info.Path,
			Clock:         w.journal.Clock(),
			WatchCount:    info.WatchCount,
			Subscribers:   info.Subscribers,
			JournalLength: w.journal.Len(),
		}
		if c.state != nil {
			if st := c.state.GetRootState(info.Path); st != nil {
				rs.EventsJournaled = &st.EventsJournaled
				if !st.LastEventAt.IsZero() {
					rs.LastEventAt = &st.LastEventAt
				}
			}
		}
		status.Roots = append(status.Roots, rs)
	}
	sort.Slice(status.Roots, func(i, j int) bool {
		return status.Roots[i].Root < status.Roots[j].Root
	})

	return status
}
