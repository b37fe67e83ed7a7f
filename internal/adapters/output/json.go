package output

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/mikey-austin/nowplaying/internal/core"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// JSONPrinter prints JSON.
type JSONPrinter struct {
	Out io.Writer
}

type announceView struct {
	Track     np.TrackEnvelope  `json:"track"`
	PlayCount *int              `json:"play_count,omitempty"`
	BPM       int               `json:"bpm,omitempty"`
	Speed     string            `json:"speed,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type nowView struct {
	Change   string            `json:"change"`
	Track    *np.TrackEnvelope `json:"track,omitempty"`
	Announce *announceView     `json:"announce,omitempty"`
}

// Print renders JSON output.
func (p JSONPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.NowResult:
		v = newNowView(data)
	case core.AnnounceResult:
		v = newAnnounceView(data)
	}
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}

func newNowView(result core.NowResult) nowView {
	view := nowView{Change: result.Change.String()}
	if result.Change != core.NothingPlaying {
		track := result.Track
		view.Track = &track
	}
	if result.Announce != nil {
		announce := newAnnounceView(*result.Announce)
		view.Announce = &announce
	}
	return view
}

func newAnnounceView(result core.AnnounceResult) announceView {
	view := announceView{Track: result.Track}
	errs := map[string]string{}
	if result.PlayCountErr != nil {
		errs["play_count"] = result.PlayCountErr.Error()
	} else {
		count := result.PlayCount.Count
		view.PlayCount = &count
	}
	if result.TempoErr != nil {
		errs["tempo"] = result.TempoErr.Error()
	} else {
		view.BPM = result.Tempo.BPM
		view.Speed = result.Tempo.Speed
	}
	if len(errs) > 0 {
		view.Errors = errs
	}
	return view
}
