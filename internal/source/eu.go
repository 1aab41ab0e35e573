package source

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

const euHeaderScan = 10

var (
	euNameColumns = []string{"vessel name", "name of vessel", "ship name", "vessel", "name", "entity name"}
	euIMOColumns  = []string{"imo", "imo number", "imo no.", "imo no", "imo-number"}
	euIDColumns   = append(append([]string{}, euIMOColumns...), "id", "reference")
	euTypeColumns = []string{"type", "entity type", "subject type"}
	euFlagColumns = []string{"flag", "flag state"}
	euDateColumns = []string{"date of listing", "listing date", "listed on"}
)

// EU reads a spreadsheet of EU-sanctioned entries. Rows default to vessels
// unless the sheet carries a type column.
type EU struct {
	feed
}

// Fetch implements Adapter.
func (e *EU) Fetch(ctx context.Context) ([]model.CandidateRecord, error) {
	data, err := e.payload(ctx, e.settings.URL, nil)
	if err != nil {
		return nil, err
	}

	rows, err := fetcher.ReadXLSX(data, fetcher.XLSXOptions{SheetName: e.settings.Sheet})
	if err != nil {
		return nil, e.badData(err)
	}

	start, nameCol, idx := -1, -1, map[string]int(nil)
	for i := 0; i < len(rows) && i < euHeaderScan; i++ {
		idx = fetcher.HeaderIndex(rows[i])
		if nameCol = fetcher.Column(idx, euNameColumns...); nameCol >= 0 {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil, e.badData(eris.New("no name column in sheet header"))
	}
	idCol := fetcher.Column(idx, euIDColumns...)
	imoCol := fetcher.Column(idx, euIMOColumns...)
	typeCol := fetcher.Column(idx, euTypeColumns...)
	flagCol := fetcher.Column(idx, euFlagColumns...)
	dateCol := fetcher.Column(idx, euDateColumns...)

	fetchedAt := e.now().UTC()
	var records []model.CandidateRecord
	for n, row := range rows[start:] {
		name := fetcher.Cell(row, nameCol)
		if name == "" {
			continue
		}

		id := fetcher.Cell(row, idCol)
		if id == "" {
			id = "row-" + strconv.Itoa(start+n+1)
		}

		et := model.EntityVessel
		if typeCol >= 0 {
			parsed, err := model.ParseEntityType(fetcher.Cell(row, typeCol))
			if err != nil {
				parsed = model.EntityUnknown
			}
			et = parsed
		}

		records = append(records, model.CandidateRecord{
			SourceID:   e.id,
			ExternalID: id,
			Name:       name,
			EntityType: et,
			RawAttributes: attrs(
				"imo", fetcher.Cell(row, imoCol),
				"flag", fetcher.Cell(row, flagCol),
				"listed_on", fetcher.Cell(row, dateCol),
			),
			FetchedAt: fetchedAt,
		})
	}
	if len(records) == 0 {
		return nil, e.badData(eris.New("no rows parsed"))
	}
	return records, nil
}
