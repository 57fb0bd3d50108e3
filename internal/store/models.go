package store

import (
	"strconv"
	"time"
)

// Keys of the notifier settings rows.
const (
	keyWeComEnable  = "wecom.enable"
	keyWeComCorpID  = "wecom.corpid"
	keyWeComSecret  = "wecom.secret"
	keyWeComAgentID = "wecom.agentid"
	keyWeComToUser  = "wecom.touser"
)

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UTC().Unix()
	}
	return t.UTC().Unix()
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
