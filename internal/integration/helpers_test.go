package integration

import (
	"encoding/json"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

func decodePresence(payload []byte) (np.Presence, bool) {
	var p np.Presence
	if err := json.Unmarshal(payload, &p); err != nil || p.NodeID == "" {
		return np.Presence{}, false
	}
	return p, true
}
