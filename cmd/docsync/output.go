package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dshills/docsync/internal/indexer"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/pkg/types"
)

// maxErrors caps the error lines printed after a run
const maxErrors = 10

func tagLabel(tag string) string {
	if tag == "" {
		return "(untagged)"
	}
	return tag
}

func printSummary(w io.Writer, mode, tag string, s *types.RunSummary) {
	fmt.Fprintf(w, "%s %s finished in %s\n", mode, tagLabel(tag), s.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  files parsed\t%d\tparse errors\t%d\n", s.FilesParsed, s.ParseErrors)
	fmt.Fprintf(tw, "  generated\t%d\trefreshed\t%d\n", s.Generated, s.Refreshed)
	fmt.Fprintf(tw, "  preserved\t%d\textracted\t%d\n", s.Preserved, s.Extracted)
	fmt.Fprintf(tw, "  failed\t%d\tremoved\t%d\n", s.Failed, s.Removed)
	fmt.Fprintf(tw, "  written\t%d\tunchanged\t%d\n", s.UpsertsWritten, s.UpsertsSkipped)
	fmt.Fprintf(tw, "  deleted\t%d\tunsynced\t%d\n", s.Deletes, s.Unsynced)
	tw.Flush()

	if len(s.FailedFiles) > 0 {
		fmt.Fprintf(w, "failed files: %s\n", strings.Join(s.FailedFiles, ", "))
	}
	for i, msg := range s.ErrorMessages {
		if i == maxErrors {
			fmt.Fprintf(w, "  ... %d more\n", len(s.ErrorMessages)-maxErrors)
			break
		}
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
}

func printResults(w io.Writer, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no results")
		return
	}
	for _, r := range resp.Results {
		rec := r.Record
		fmt.Fprintf(w, "%2d. %.3f  %s  (%s, %s)  %s\n",
			r.Rank, r.RelevanceScore, rec.QualifiedName, rec.Kind, rec.FilePath, tagLabel(rec.VersionTag))
		if line := firstLine(rec.Text); line != "" {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	fmt.Fprintf(w, "%d results, %s search, %s\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(time.Millisecond))
}

func printStatus(w io.Writer, st *indexer.Status) {
	fmt.Fprintf(w, "repository  %s\n", st.Root)
	fmt.Fprintf(w, "project     %s\n", st.Project)
	if st.Head != "" {
		fmt.Fprintf(w, "head        %s\n", shortSHA(st.Head))
	}
	if st.Running {
		fmt.Fprintln(w, "a run is in progress")
	}

	if len(st.Tags) > 0 {
		fmt.Fprintln(w, "\ntags:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, name := range sortedKeys(st.Tags) {
			ts := st.Tags[name]
			synced := "never"
			if !ts.SyncedAt.IsZero() {
				synced = ts.SyncedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%d failed\n", tagLabel(name), shortSHA(ts.LastRef), synced, len(ts.FailedPaths))
		}
		tw.Flush()
	}

	if st.Store != nil {
		fmt.Fprintf(w, "\nindex (%s): %d records\n", st.Store.Backend, st.Store.Records)
		printCounts(w, "by tag", st.Store.ByTag)
		printCounts(w, "by language", st.Store.ByLanguage)
		printCounts(w, "by kind", st.Store.ByKind)
	}

	if last := st.LastRun; last != nil && last.Summary != nil {
		fmt.Fprintf(w, "\nlast run %s, started %s", last.ID, last.StartedAt.Local().Format(time.DateTime))
		if last.Cancelled {
			fmt.Fprint(w, " (cancelled)")
		}
		fmt.Fprintln(w)
		printSummary(w, last.Mode, last.VersionTag, last.Summary)
	}
}

func printCounts(w io.Writer, label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s=%d", tagLabel(k), counts[k]))
	}
	fmt.Fprintf(w, "  %-12s %s\n", label, strings.Join(parts, " "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	if sha == "" {
		return "-"
	}
	return sha
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
