package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"wedding-ops/internal/checkin"
	"wedding-ops/internal/groups"
	"wedding-ops/internal/materialize"
	"wedding-ops/internal/models"
	"wedding-ops/internal/seating"
	"wedding-ops/internal/syncwatch"
)

// emit writes v as indented JSON or through text, depending on --format
func (o *RootOptions) emit(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderGroups(w io.Writer, idx groups.Index) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "GROUP\tNAME\tSIDE\tMEMBERS\tARRIVED")
	for _, g := range idx.Groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\n",
			g.GroupID, g.GroupName, dash(string(g.Side)), g.TotalCount, g.CheckedInCount, g.TotalCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(idx.Ungrouped) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nUngrouped (%d):\n", len(idx.Ungrouped))
	for _, g := range idx.Ungrouped {
		fmt.Fprintf(w, "  %s  %s\n", g.ID, g.FullName())
	}
	return nil
}

func renderGroup(w io.Writer, g models.GuestGroup) error {
	fmt.Fprintf(w, "%s [%s] %d/%d arrived\n", g.GroupName, g.GroupID, g.CheckedInCount, g.TotalCount)
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tID\tNAME\tRELATION\tTABLE\tARRIVED")
	for _, m := range g.Members {
		relation := m.RelationToMain
		if m.IsOwner {
			relation = "owner"
		}
		table := ""
		if m.Seat != nil {
			table = m.Seat.TableID
		}
		arrived := ""
		if m.CheckedInAt != nil {
			arrived = m.CheckedInAt.UTC().Format("15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			m.OrderIndex, m.ID, m.FullName, dash(relation), dash(table), dash(arrived))
	}
	return tw.Flush()
}

func renderLayout(w io.Writer, layout seating.Layout) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ZONE/TABLE\tSEATED\tCAPACITY\tFREE")
	for _, z := range layout.Zones {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", z.Zone.Name, z.Occupied, z.Capacity, max(z.Capacity-z.Occupied, 0))
		for _, t := range z.Tables {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", t.Table.Name, t.Occupied, t.Table.Capacity, t.Remaining)
		}
	}
	for _, t := range layout.Orphans {
		fmt.Fprintf(tw, "? %s\t%d\t%d\t%d\n", t.Table.Name, t.Occupied, t.Table.Capacity, t.Remaining)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nSeated: %d  Unseated: %d\n", layout.Seated, layout.Unseated)
	return err
}

func renderErrors(w io.Writer, errs map[string]string) {
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, errs[id])
	}
}

func renderAssign(w io.Writer, res seating.AssignResult) error {
	fmt.Fprintf(w, "Table %s: %d assigned, %d failed (%d table full)\n",
		res.TableID, res.SuccessCount(), res.FailCount(), res.TableFullCount())
	renderErrors(w, res.Errors)
	return nil
}

func renderBatch(w io.Writer, verb string, res seating.BatchResult) error {
	fmt.Fprintf(w, "%d %s, %d failed\n", len(res.Succeeded), verb, len(res.Failed))
	renderErrors(w, res.Errors)
	return nil
}

func renderImport(w io.Writer, s materialize.ImportSummary) error {
	fmt.Fprintf(w, "Imported: %d\nAlready imported: %d\nNot coming: %d\nFailed: %d\nCompanion failures: %d\n",
		s.Imported, s.AlreadyImported, s.NotComing, s.Failed, s.CompanionFailures)
	renderErrors(w, s.Errors)
	return nil
}

func renderSync(w io.Writer, r syncwatch.SyncResult) error {
	_, err := fmt.Fprintf(w, "Pending: %d  Materialized: %d  Already imported: %d  In flight: %d  Failed: %d\n",
		r.Pending, r.Materialized, r.AlreadyImported, r.InFlight, r.Failed)
	return err
}

func renderCheckIn(w io.Writer, verb string, r checkin.CheckInResult) error {
	if r.NoChange {
		_, err := fmt.Fprintf(w, "%s: no change\n", r.GuestID)
		return err
	}
	fmt.Fprintf(w, "%s: %s", r.GuestID, verb)
	if r.Cascaded > 0 || r.CascadeFailed > 0 {
		fmt.Fprintf(w, " (+%d group members, %d failed)", r.Cascaded, r.CascadeFailed)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func renderDisposition(w io.Writer, g models.GuestRecord) error {
	d := string(g.IsComing)
	if d == "" {
		d = "pending"
	}
	_, err := fmt.Fprintf(w, "%s: %s\n", g.ID, d)
	return err
}

func renderGroupResult(w io.Writer, r checkin.GroupResult) error {
	fmt.Fprintf(w, "Group %s %s: %d done, %d skipped, %d failed\n", r.GroupID, r.Action, r.Success, r.Skipped, r.Failed)
	renderErrors(w, r.Errors)
	return nil
}
