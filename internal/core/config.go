package core

import (
	"time"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

// DefaultSettle is the pause between broadcasting an envelope and querying
// the services that consume it.
const DefaultSettle = 100 * time.Millisecond

// Config is runtime configuration for the CLI.
type Config struct {
	Broker    string
	Identity  string
	TopicBase string
	// Settle delays the first query after a broadcast. Zero disables it.
	Settle time.Duration
	Nodes  Nodes
}

// Nodes names the query services to address.
type Nodes struct {
	PlayCount string
	Tempo     string
	TopItems  string
}

// DefaultNodes returns the well-known node ids.
func DefaultNodes() Nodes {
	return Nodes{
		PlayCount: np.NodePlayCount,
		Tempo:     np.NodeTempo,
		TopItems:  np.NodeTopItems,
	}
}

func (n Nodes) withDefaults() Nodes {
	defaults := DefaultNodes()
	if n.PlayCount == "" {
		n.PlayCount = defaults.PlayCount
	}
	if n.Tempo == "" {
		n.Tempo = defaults.Tempo
	}
	if n.TopItems == "" {
		n.TopItems = defaults.TopItems
	}
	return n
}
