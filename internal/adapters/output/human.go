package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/nowplaying/internal/core"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := p.writer()
	switch data := v.(type) {
	case core.NowResult:
		return printNow(w, data)
	case core.AnnounceResult:
		return printAnnounce(w, data)
	case core.PlayCountResult:
		_, err := fmt.Fprintf(w, "%s: played %d times\n", data.TrackID, data.Count)
		return err
	case core.TempoResult:
		_, err := fmt.Fprintf(w, "%s: %d BPM, %s the previous track\n", data.TrackID, data.BPM, data.Speed)
		return err
	case core.TopResult:
		return printTop(w, data)
	case core.HistoryResult:
		return printHistory(w, data)
	case core.NodesResult:
		return printNodes(w, data)
	case core.PlaylistListResult:
		return printPlaylists(w, data)
	case core.PlaylistAddResult:
		_, err := fmt.Fprint(w, pterm.Success.Sprintfln("Track '%s' added to playlist '%s'.", data.Track.Title, data.Playlist.Name))
		return err
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

func (p HumanPrinter) writer() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func printNow(w io.Writer, result core.NowResult) error {
	switch result.Change {
	case core.NothingPlaying:
		_, err := fmt.Fprintln(w, "No track is currently playing.")
		return err
	case core.Unchanged:
		_, err := fmt.Fprintln(w, "Same track as before; no new update.")
		return err
	}
	if result.Announce == nil {
		return nil
	}
	return printAnnounce(w, *result.Announce)
}

func printAnnounce(w io.Writer, result core.AnnounceResult) error {
	lines := []string{
		pterm.Info.Sprintfln("You are now listening to '%s' by %s.", result.Track.Title, result.Track.Artist),
	}
	if result.PlayCountErr != nil {
		lines = append(lines, pterm.Error.Sprintfln("Play count unavailable: %v", result.PlayCountErr))
	} else {
		lines = append(lines, pterm.Info.Sprintfln("You've listened to this track %d times.", result.PlayCount.Count))
	}
	if result.TempoErr != nil {
		lines = append(lines, pterm.Error.Sprintfln("Tempo unavailable: %v", result.TempoErr))
	} else {
		lines = append(lines, pterm.Info.Sprintfln("This track's tempo is %d BPM, %s the previous track.", result.Tempo.BPM, result.Tempo.Speed))
	}
	for _, line := range lines {
		if _, err := fmt.Fprint(w, line); err != nil {
			return err
		}
	}
	return nil
}

func printTop(w io.Writer, result core.TopResult) error {
	if len(result.Artists) == 0 {
		_, err := fmt.Fprintln(w, "No top artists found.")
		return err
	}
	items := make([]pterm.BulletListItem, 0, len(result.Artists))
	for i, name := range result.Artists {
		items = append(items, pterm.BulletListItem{Level: 0, Text: name, Bullet: strconv.Itoa(i+1) + "."})
	}
	rendered, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, rendered)
	return err
}

func printHistory(w io.Writer, result core.HistoryResult) error {
	if len(result.Entries) == 0 {
		_, err := fmt.Fprintln(w, "No history yet.")
		return err
	}
	data := pterm.TableData{{"TRACK_ID", "TITLE", "ARTIST", "ALBUM"}}
	for _, entry := range result.Entries {
		data = append(data, []string{entry.TrackID, entry.Title, entry.Artist, entry.Album})
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func printNodes(w io.Writer, result core.NodesResult) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tKIND\tNODE_ID"); err != nil {
		return err
	}
	for _, node := range result.Nodes {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", node.Name, node.Kind, node.NodeID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printPlaylists(w io.Writer, result core.PlaylistListResult) error {
	if len(result.Playlists) == 0 {
		_, err := fmt.Fprintln(w, "No playlists found.")
		return err
	}
	for idx, playlist := range result.Playlists {
		if _, err := fmt.Fprintf(w, "%d. %s\n", idx+1, playlist.Name); err != nil {
			return err
		}
	}
	return nil
}
