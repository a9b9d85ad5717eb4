package scraper

// Layout names a listing table format.
type Layout string

const (
	// LayoutLegacy is the surveillance listing: number, subject, decision
	// date, documents.
	LayoutLegacy Layout = "legacy"
	// LayoutAccessRequest is the access-request listing: number, subject,
	// transmission date, diffusion date, documents.
	LayoutAccessRequest Layout = "access-request"
)

// Link is an anchor inside a table cell.
type Link struct {
	Label string
	Href  string
}

// Cell is the trimmed text of a table cell and the anchors it contains.
type Cell struct {
	Text  string
	Links []Link
}

// Fields is the uniform view of a row regardless of layout.
type Fields struct {
	Number           string
	Subject          string
	Date             string
	TransmissionDate string
	Documents        Cell
}

// Row is a table row in one of the known layouts. The set of
// implementations is closed: LegacyRow and AccessRequestRow.
type Row interface {
	Layout() Layout
	Fields() Fields
	sealed()
}

// LegacyRow is a 4-cell row.
type LegacyRow struct {
	Number       Cell
	Subject      Cell
	DecisionDate Cell
	Documents    Cell
}

// Layout reports LayoutLegacy.
func (LegacyRow) Layout() Layout { return LayoutLegacy }

func (LegacyRow) sealed() {}

// Fields maps the decision date cell to Fields.Date.
func (r LegacyRow) Fields() Fields {
	return Fields{
		Number:    r.Number.Text,
		Subject:   r.Subject.Text,
		Date:      r.DecisionDate.Text,
		Documents: r.Documents,
	}
}

// AccessRequestRow is a row of 5 or more cells. The diffusion date is the
// decision date.
type AccessRequestRow struct {
	Number           Cell
	Subject          Cell
	TransmissionDate Cell
	DiffusionDate    Cell
	Documents        Cell
}

// Layout reports LayoutAccessRequest.
func (AccessRequestRow) Layout() Layout { return LayoutAccessRequest }

func (AccessRequestRow) sealed() {}

// Fields maps the diffusion date to Fields.Date and keeps the transmission
// date alongside it.
func (r AccessRequestRow) Fields() Fields {
	return Fields{
		Number:           r.Number.Text,
		Subject:          r.Subject.Text,
		Date:             r.DiffusionDate.Text,
		TransmissionDate: r.TransmissionDate.Text,
		Documents:        r.Documents,
	}
}

// ParseRow selects the layout by cell count. Rows with fewer than 4 cells
// are malformed and yield nil.
func ParseRow(cells []Cell) Row {
	switch {
	case len(cells) >= 5:
		return AccessRequestRow{
			Number:           cells[0],
			Subject:          cells[1],
			TransmissionDate: cells[2],
			DiffusionDate:    cells[3],
			Documents:        cells[4],
		}
	case len(cells) == 4:
		return LegacyRow{
			Number:       cells[0],
			Subject:      cells[1],
			DecisionDate: cells[2],
			Documents:    cells[3],
		}
	default:
		return nil
	}
}
