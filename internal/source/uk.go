package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

// ukHeaderScan bounds how many leading rows may precede the header.
const ukHeaderScan = 5

// UK reads the OFSI consolidated list CSV. Each designation spans several
// rows (one per name variant) sharing a Group ID.
type UK struct {
	feed
}

type ukColumns struct {
	names     [6]int // Name 1..Name 6
	groupType int
	groupID   int
	aliasType int
	regime    int
	listedOn  int
	country   int
	imo       int
}

// Fetch implements Adapter.
func (u *UK) Fetch(ctx context.Context) ([]model.CandidateRecord, error) {
	data, err := u.payload(ctx, u.settings.URL, nil)
	if err != nil {
		return nil, err
	}

	rows, err := fetcher.CollectCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	if err != nil {
		return nil, u.readErr(ctx, err)
	}

	cols, start, err := locateUKHeader(rows)
	if err != nil {
		return nil, u.badData(err)
	}

	fetchedAt := u.now().UTC()
	var records []model.CandidateRecord
	byGroup := make(map[string]int)
	for _, row := range rows[start:] {
		id := fetcher.Cell(row, cols.groupID)
		name := ukName(row, cols)
		if id == "" || name == "" {
			continue
		}

		primary := strings.EqualFold(fetcher.Cell(row, cols.aliasType), "Primary name")
		if i, ok := byGroup[id]; ok {
			rec := &records[i]
			if primary && rec.Name != name {
				rec.Aliases = append(rec.Aliases, rec.Name)
				rec.Name = name
			} else if name != rec.Name {
				rec.Aliases = append(rec.Aliases, name)
			}
			continue
		}

		byGroup[id] = len(records)
		records = append(records, model.CandidateRecord{
			SourceID:   u.id,
			ExternalID: id,
			Name:       name,
			EntityType: ukType(fetcher.Cell(row, cols.groupType)),
			RawAttributes: attrs(
				"regime", fetcher.Cell(row, cols.regime),
				"listed_on", fetcher.Cell(row, cols.listedOn),
				"country", fetcher.Cell(row, cols.country),
				"imo", fetcher.Cell(row, cols.imo),
			),
			FetchedAt: fetchedAt,
		})
	}
	if len(records) == 0 {
		return nil, u.badData(eris.New("no designations parsed"))
	}
	return records, nil
}

// locateUKHeader finds the header row and returns the data start offset.
func locateUKHeader(rows [][]string) (ukColumns, int, error) {
	for i := 0; i < len(rows) && i < ukHeaderScan; i++ {
		idx := fetcher.HeaderIndex(rows[i])
		cols := ukColumns{
			groupType: fetcher.Column(idx, "group type"),
			groupID:   fetcher.Column(idx, "group id"),
			aliasType: fetcher.Column(idx, "alias type"),
			regime:    fetcher.Column(idx, "regime"),
			listedOn:  fetcher.Column(idx, "listed on", "date designated"),
			country:   fetcher.Column(idx, "country"),
			imo:       fetcher.Column(idx, "imo number", "imo"),
		}
		for n := range cols.names {
			cols.names[n] = fetcher.Column(idx, "name "+string(rune('1'+n)))
		}
		if cols.names[5] >= 0 && cols.groupID >= 0 {
			return cols, i + 1, nil
		}
	}
	return ukColumns{}, 0, eris.New("header with Name 6 and Group ID not found")
}

// ukName joins Name 1..5 (forenames) with Name 6 (surname or entity name).
func ukName(row []string, cols ukColumns) string {
	parts := make([]string, 0, 6)
	for _, i := range cols.names {
		if v := fetcher.Cell(row, i); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func ukType(t string) model.EntityType {
	switch strings.ToLower(t) {
	case "individual":
		return model.EntityPerson
	case "entity":
		return model.EntityCompany
	case "ship":
		return model.EntityVessel
	default:
		return model.EntityUnknown
	}
}
