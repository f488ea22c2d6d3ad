package syncer

import "time"

const dateParam = "20060102"

// Window is a half-open date range queried in one request
type Window struct {
	Start time.Time
	End   time.Time
}

// StartParam formats the window start as YYYYMMDD
func (w Window) StartParam() string { return w.Start.Format(dateParam) }

// EndParam formats the window end as YYYYMMDD
func (w Window) EndParam() string { return w.End.Format(dateParam) }

// Windows splits [horizon, now) into consecutive windows of days days,
// oldest first. The last window ends at now.
func Windows(horizon, now time.Time, days int) []Window {
	if days <= 0 {
		days = 30
	}

	var windows []Window
	for cur := horizon; cur.Before(now); {
		end := cur.AddDate(0, 0, days)
		if end.After(now) {
			end = now
		}
		windows = append(windows, Window{Start: cur, End: end})
		cur = end
	}
	return windows
}
