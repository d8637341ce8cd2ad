// Package output persists the artifacts of a stopped session: the final
// summary text, the structured data JSON, and one row in the shared meetings
// CSV.
//
// All paths may start with "~", which expands to the user's home directory.
// Summary and data files are written through a temp-file rename so readers
// never observe a partial artifact. CSV appends are serialized by an advisory
// file lock plus an in-process mutex; see csv.go.
package output

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/auricle-audio/auricle/internal/fault"
	"github.com/auricle-audio/auricle/internal/summarize"
)

// fileTimestampLayout names flat artifacts, e.g. summary_20260824_143000.txt.
const fileTimestampLayout = "20060102_150405"

// WriteRequest carries everything needed to persist one stopped session.
type WriteRequest struct {
	// OutputDir receives the summary and data files. Created if missing.
	OutputDir string

	// CSVPath is the shared meetings CSV. Ignored when AppendCSV is false.
	CSVPath string

	// AppendCSV enables the meetings CSV row for this session.
	AppendCSV bool

	// FolderNaming writes summary.txt and data.json into a per-meeting
	// subfolder named after the extracted company and contact instead of
	// flat timestamped files. Falls back to flat naming when extraction
	// produced neither.
	FolderNaming bool

	// Summary is the final summary text.
	Summary string

	// Data is the structured extraction result.
	Data summarize.MeetingData

	// StoppedAt is the session stop time, in local time.
	StoppedAt time.Time

	// SessionID is logged alongside the written paths.
	SessionID string
}

// Artifacts reports the absolute paths written for a session. CSVPath is
// empty when the CSV was disabled or its write failed.
type Artifacts struct {
	SummaryPath string
	DataPath    string
	CSVPath     string
}

// Writer persists session artifacts. One Writer is shared by all sessions so
// the CSV mutex actually serializes concurrent stops.
type Writer struct {
	logger *slog.Logger
	csv    csvAppender
}

// NewWriter returns a Writer logging through the given logger. A nil logger
// falls back to slog.Default.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// WriteArtifacts persists the summary, data JSON, and CSV row for a stopped
// session. Paths already written are reported in Artifacts even when a later
// write fails, so the caller can surface partial results.
func (w *Writer) WriteArtifacts(req WriteRequest) (Artifacts, error) {
	var out Artifacts

	dir, err := ExpandHome(req.OutputDir)
	if err != nil {
		return out, fault.Wrap(fault.CodeOutputWriteFailure, "resolve output directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, fault.Wrap(fault.CodeOutputWriteFailure, "create output directory", err)
	}

	summaryPath, dataPath := w.artifactPaths(dir, req)
	if sub := filepath.Dir(summaryPath); sub != dir {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return out, fault.Wrap(fault.CodeOutputWriteFailure, "create meeting folder", err)
		}
	}

	summary := req.Summary
	if !strings.HasSuffix(summary, "\n") {
		summary += "\n"
	}
	if err := writeFileAtomic(summaryPath, []byte(summary)); err != nil {
		return out, fault.Wrap(fault.CodeOutputWriteFailure, "write summary", err)
	}
	out.SummaryPath = summaryPath
	w.logger.Info("wrote summary", "session_id", req.SessionID, "path", summaryPath)

	encoded, err := json.MarshalIndent(req.Data, "", "  ")
	if err != nil {
		return out, fault.Wrap(fault.CodeOutputWriteFailure, "encode meeting data", err)
	}
	if err := writeFileAtomic(dataPath, append(encoded, '\n')); err != nil {
		return out, fault.Wrap(fault.CodeOutputWriteFailure, "write meeting data", err)
	}
	out.DataPath = dataPath
	w.logger.Info("wrote meeting data", "session_id", req.SessionID, "path", dataPath)

	if req.AppendCSV {
		csvPath, err := ExpandHome(req.CSVPath)
		if err != nil {
			return out, fault.Wrap(fault.CodeOutputWriteFailure, "resolve csv path", err)
		}
		if err := w.csv.append(csvPath, buildCSVRow(req.Data, req.StoppedAt)); err != nil {
			return out, fault.Wrap(fault.CodeOutputWriteFailure, "append meetings csv", err)
		}
		out.CSVPath = csvPath
		w.logger.Info("appended meetings csv", "session_id", req.SessionID, "path", csvPath)
	}

	return out, nil
}

// artifactPaths resolves the summary and data file paths for the request,
// honoring per-meeting folder naming when enabled and usable.
func (w *Writer) artifactPaths(dir string, req WriteRequest) (summaryPath, dataPath string) {
	if req.FolderNaming {
		if folder, ok := meetingFolderName(req.Data, req.StoppedAt); ok {
			base := filepath.Join(dir, folder)
			return filepath.Join(base, "summary.txt"), filepath.Join(base, "data.json")
		}
	}
	ts := req.StoppedAt.Format(fileTimestampLayout)
	return filepath.Join(dir, "summary_"+ts+".txt"), filepath.Join(dir, "data_"+ts+".json")
}

// meetingFolderName derives "YYYY-MM-DD Company - Contact" from the extracted
// data. Reports false when neither a company nor a contact name is present.
func meetingFolderName(data summarize.MeetingData, stoppedAt time.Time) (string, bool) {
	var company, contact string
	if len(data.Companies) > 0 && data.Companies[0].Name != nil {
		company = strings.TrimSpace(*data.Companies[0].Name)
	}
	if len(data.Contacts) > 0 && data.Contacts[0].Name != nil {
		contact = strings.TrimSpace(*data.Contacts[0].Name)
	}
	if company == "" && contact == "" {
		return "", false
	}

	name := stoppedAt.Format("2006-01-02")
	switch {
	case company != "" && contact != "":
		name += " " + company + " - " + contact
	case company != "":
		name += " " + company
	default:
		name += " " + contact
	}
	return sanitizeFolderName(name), true
}

// sanitizeFolderName replaces characters that are unsafe in directory names.
func sanitizeFolderName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\x00':
			return '-'
		}
		return r
	}, name)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ExpandHome expands a leading "~" or "~/" to the current user's home
// directory. Paths without the prefix are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
