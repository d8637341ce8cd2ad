package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/auricle-audio/auricle/internal/summarize"
)

// csvHeader is the fixed column order of meetings.csv. It is written exactly
// once per file, when the file is first created.
var csvHeader = []string{
	"meeting_date",
	"meeting_time",
	"timestamp_file",
	"contact_name",
	"contact_role",
	"contact_location",
	"contact_is_decision_maker",
	"contact_tenure",
	"company_name",
	"company_aum",
	"company_icp",
	"company_location",
	"company_is_client",
	"company_competitor_products",
	"company_strategies_of_interest",
	"deal_ticket_size",
	"deal_products_of_interest",
	"total_contacts",
	"total_companies",
	"total_deals",
}

// csvAppender serializes meetings.csv writes. The mutex guards against
// header races between sessions in this process; the advisory file lock
// guards against a second engine process pointed at the same file.
type csvAppender struct {
	mu sync.Mutex
}

// append adds one row to the CSV at path, creating the file with its header
// row first when it does not exist. The first write goes through a temp-file
// rename so a crash cannot leave a headerless file behind.
func (a *csvAppender) append(path string, row []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return a.createWithRow(path, row)
	case err != nil:
		return err
	case info.Size() == 0:
		return a.createWithRow(path, row)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// createWithRow atomically writes a fresh CSV containing the header and the
// first row.
func (a *csvAppender) createWithRow(path string, row []string) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(sb.String()))
}

// buildCSVRow flattens the meeting data into the fixed column order. Primary
// entity columns take the first element of each array; list cells join their
// values with ", "; absent values are empty strings.
func buildCSVRow(data summarize.MeetingData, stoppedAt time.Time) []string {
	var contact summarize.Contact
	if len(data.Contacts) > 0 {
		contact = data.Contacts[0]
	}
	var company summarize.Company
	if len(data.Companies) > 0 {
		company = data.Companies[0]
	}
	var deal summarize.Deal
	if len(data.Deals) > 0 {
		deal = data.Deals[0]
	}

	return []string{
		stoppedAt.Format("2006-01-02"),
		stoppedAt.Format("15:04:05"),
		stoppedAt.Format(fileTimestampLayout),
		cellString(contact.Name),
		cellString(contact.Role),
		cellString(contact.Location),
		cellBool(contact.IsDecisionMaker),
		cellString(contact.TenureDuration),
		cellString(company.Name),
		cellString(company.AUM),
		cellInt(company.ICPClassification),
		cellString(company.Location),
		cellBool(company.IsClient),
		strings.Join(company.CompetitorProducts, ", "),
		strings.Join(company.StrategiesOfInterest, ", "),
		cellString(deal.TicketSize),
		strings.Join(deal.ProductsOfInterest, ", "),
		strconv.Itoa(len(data.Contacts)),
		strconv.Itoa(len(data.Companies)),
		strconv.Itoa(len(data.Deals)),
	}
}

func cellString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cellBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func cellInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
