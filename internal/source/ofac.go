package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/fetcher"
	"github.com/sells-group/sanction-watch/internal/model"
)

// ofacNull is the placeholder OFAC writes into empty SDN columns.
const ofacNull = "-0-"

// SDN CSV columns. The file has no header row.
const (
	sdnEntNum = iota
	sdnName
	sdnType
	sdnProgram
	sdnTitle
	sdnCallSign
	sdnVessType
	sdnTonnage
	sdnGRT
	sdnVessFlag
	sdnVessOwner
	sdnRemarks
)

// OFAC reads the US Treasury SDN list and, when configured, its alternate names.
type OFAC struct {
	feed
}

// Fetch implements Adapter.
func (o *OFAC) Fetch(ctx context.Context) ([]model.CandidateRecord, error) {
	data, err := o.payload(ctx, o.settings.URL, nil)
	if err != nil {
		return nil, err
	}

	rows, err := fetcher.CollectCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	if err != nil {
		return nil, o.readErr(ctx, err)
	}

	fetchedAt := o.now().UTC()
	records := make([]model.CandidateRecord, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		id, name := ofacValue(row, sdnEntNum), ofacValue(row, sdnName)
		if id == "" || name == "" {
			continue
		}
		index[id] = len(records)
		records = append(records, model.CandidateRecord{
			SourceID:   o.id,
			ExternalID: id,
			Name:       name,
			EntityType: ofacType(ofacValue(row, sdnType)),
			RawAttributes: attrs(
				"program", ofacValue(row, sdnProgram),
				"title", ofacValue(row, sdnTitle),
				"call_sign", ofacValue(row, sdnCallSign),
				"vessel_type", ofacValue(row, sdnVessType),
				"tonnage", ofacValue(row, sdnTonnage),
				"grt", ofacValue(row, sdnGRT),
				"vessel_flag", ofacValue(row, sdnVessFlag),
				"vessel_owner", ofacValue(row, sdnVessOwner),
				"remarks", ofacValue(row, sdnRemarks),
			),
			FetchedAt: fetchedAt,
		})
	}
	if len(records) == 0 {
		return nil, o.badData(eris.Errorf("no SDN rows parsed from %d lines", len(rows)))
	}

	if o.settings.AliasURL != "" {
		if err := o.attachAliases(ctx, records, index); err != nil {
			zap.L().Warn("ofac: alternate names unavailable, continuing with primary names",
				zap.String("source", o.id),
				zap.Error(err),
			)
		}
	}

	return records, nil
}

// attachAliases reads alt.csv (ent_num, alt_num, alt_type, alt_name, remarks).
func (o *OFAC) attachAliases(ctx context.Context, records []model.CandidateRecord, index map[string]int) error {
	data, err := o.payload(ctx, o.settings.AliasURL, nil)
	if err != nil {
		return err
	}
	rows, err := fetcher.CollectCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	if err != nil {
		return err
	}
	for _, row := range rows {
		i, ok := index[ofacValue(row, 0)]
		if !ok {
			continue
		}
		if alias := ofacValue(row, 3); alias != "" {
			records[i].Aliases = append(records[i].Aliases, alias)
		}
	}
	return nil
}

func ofacValue(row []string, i int) string {
	v := fetcher.Cell(row, i)
	if v == ofacNull {
		return ""
	}
	return v
}

func ofacType(t string) model.EntityType {
	switch strings.ToLower(t) {
	case "individual":
		return model.EntityPerson
	case "vessel":
		return model.EntityVessel
	case "":
		return model.EntityCompany
	default:
		return model.EntityUnknown
	}
}
